package tossdconf

import "testing"

func TestLoadRequiresChainRPCURL(t *testing.T) {
	_, err := Load([]string{"--walletproviderurl=http://localhost"})
	if err == nil {
		t.Fatal("expected error when chainrpcurl is missing")
	}
}

func TestLoadRequiresWalletProviderURL(t *testing.T) {
	_, err := Load([]string{"--chainrpcurl=http://localhost:8545"})
	if err == nil {
		t.Fatal("expected error when walletproviderurl is missing")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]string{
		"--chainrpcurl=http://localhost:8545",
		"--walletproviderurl=http://localhost:9000",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CommandPrefix != "@toss" {
		t.Fatalf("expected default command prefix, got %q", cfg.CommandPrefix)
	}
	if cfg.ChainIDEnv != ChainBaseSepolia {
		t.Fatalf("expected default chain id, got %q", cfg.ChainIDEnv)
	}
	if cfg.StablecoinAddress() == "" {
		t.Fatal("expected non-empty stablecoin address for default chain")
	}
}
