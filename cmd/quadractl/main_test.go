package main

import (
	"bytes"
	"testing"
)

func TestRunNormalize(t *testing.T) {
	var out, errOut bytes.Buffer
	if err := runNormalize(&out, &errOut, " 12-3, 2-10,x, 2-9 ,12-3,"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "2-9, 2-10, 12-3\n" {
		t.Fatalf("out=%q", got)
	}
	if got := errOut.String(); got != "dropped malformed key \"x\"\n" {
		t.Fatalf("stderr=%q", got)
	}
}
