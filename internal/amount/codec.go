package amount

// Codec encodes and decodes the option-index tag carried in the low-order
// minor units of a toss payment. For option index i in {0,1}, the tagged
// amount sent on-chain is floor(stake*1e6) + (i+1); decoding takes the
// remainder of the received amount mod 10 and, if it falls in {1,...,5},
// interprets it as option index (remainder-1).
type Codec struct{}

// NewCodec returns the stateless amount codec.
func NewCodec() Codec {
	return Codec{}
}

// Encode returns the minor-unit amount a participant must send to signal
// option index optionIdx (0 or 1) for the given stake.
func (Codec) Encode(optionIdx int, stake Amount) Amount {
	return stake + Amount(optionIdx+1)
}

// Decode recovers an option index from a received minor-unit amount, given
// the number of options the target toss defines. ok is false when the
// remainder carries no option signal (0 or >=6) or decodes to an index
// outside [0, numOptions).
func (Codec) Decode(received Amount, numOptions int) (optionIdx int, ok bool) {
	remainder := int64(received) % 10
	if remainder < 0 {
		remainder += 10
	}
	if remainder < 1 || remainder > 5 {
		return 0, false
	}
	idx := int(remainder - 1)
	if idx >= numOptions {
		return 0, false
	}
	return idx, true
}
