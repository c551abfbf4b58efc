package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/urfave/cli"
)

// getHTTPClient builds the base URL and Authorization header every tossctl
// command needs, the equivalent of dcrlncli's getClientConn for a plain
// HTTP admin surface.
func getHTTPClient(ctx *cli.Context) (baseURL string, macaroonHeader string, err error) {
	scheme := "https"
	if ctx.GlobalBool("insecure") {
		scheme = "http"
	}
	baseURL = fmt.Sprintf("%s://%s", scheme, ctx.GlobalString("rpcserver"))

	path := ctx.GlobalString("macaroonpath")
	if path == "" {
		return baseURL, "", nil
	}

	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("could not read macaroon at %s: %w", path, err)
	}
	return baseURL, "Macaroon " + string(raw), nil
}

// doRequest issues method against baseURL+path, decoding the response body
// as JSON into out when the status is 2xx, and returning the server's
// {"error": ...} body as the error otherwise.
func doRequest(ctx *cli.Context, method, path string, body interface{}, out interface{}) error {
	baseURL, macaroon, err := getHTTPClient(ctx)
	if err != nil {
		return err
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return err
	}
	if macaroon != "" {
		req.Header.Set("Authorization", macaroon)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// printRespJSON pretty-prints v to stdout, mirroring dcrlncli's
// printRespJSON helper.
func printRespJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not marshal response:", err)
		return
	}
	fmt.Println(string(raw))
}
