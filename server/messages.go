package server

import "time"

// RunRequest asks the server to execute a program image. Exactly one of
// Image and Hash must be set.
type RunRequest struct {
	Image    []byte `cbor:"1,keyasint,omitempty"` // encoded image.Program
	Hash     string `cbor:"2,keyasint,omitempty"` // hash of an image in the server's store
	Stdin    string `cbor:"3,keyasint,omitempty"`
	MaxSteps uint64 `cbor:"4,keyasint,omitempty"` // capped by the server limit
	Keep     bool   `cbor:"5,keyasint,omitempty"` // store the image for later runs by hash
}

// RunResponse reports one execution. A program that fails at run time is
// still a successful RPC: Success is false and Error says why.
type RunResponse struct {
	RunID     string `cbor:"1,keyasint"`
	Hash      string `cbor:"2,keyasint"`
	Stdout    string `cbor:"3,keyasint"`
	Steps     uint64 `cbor:"4,keyasint"`
	Success   bool   `cbor:"5,keyasint"`
	Error     string `cbor:"6,keyasint,omitempty"`
	ErrorKind string `cbor:"7,keyasint,omitempty"`
}

// GetRunRequest looks up a finished run.
type GetRunRequest struct {
	RunID string `cbor:"1,keyasint"`
}

// RunInfo is the record the server keeps for each run.
type RunInfo struct {
	RunID    string    `cbor:"1,keyasint"`
	Hash     string    `cbor:"2,keyasint"`
	Steps    uint64    `cbor:"3,keyasint"`
	Success  bool      `cbor:"4,keyasint"`
	Error    string    `cbor:"5,keyasint,omitempty"`
	Started  time.Time `cbor:"6,keyasint"`
	Finished time.Time `cbor:"7,keyasint"`
}
