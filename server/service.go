package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/quadra/errs"
	"github.com/chazu/quadra/image"
	"github.com/chazu/quadra/imagestore"
	"github.com/chazu/quadra/vm"
)

// Procedure names served by ExecService.
const (
	RunProcedure    = "/quadra.v1.ExecService/Run"
	GetRunProcedure = "/quadra.v1.ExecService/GetRun"
)

// ExecService runs program images on behalf of remote clients.
type ExecService struct {
	worker   *Worker
	runs     *RunStore
	store    *imagestore.Store // may be nil
	policy   *image.NativePolicy
	maxSteps uint64
}

// NewExecService creates an ExecService.
func NewExecService(worker *Worker, runs *RunStore, store *imagestore.Store, policy *image.NativePolicy, maxSteps uint64) *ExecService {
	if policy == nil {
		policy = image.NewPermissivePolicy()
	}
	return &ExecService{
		worker:   worker,
		runs:     runs,
		store:    store,
		policy:   policy,
		maxSteps: maxSteps,
	}
}

// Run executes the requested image to completion.
func (s *ExecService) Run(
	ctx context.Context,
	req *connect.Request[RunRequest],
) (*connect.Response[RunResponse], error) {
	prog, hash, err := s.resolve(req.Msg)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Check(prog); err != nil {
		return nil, connect.NewError(connect.CodePermissionDenied, err)
	}

	info := s.runs.Start(image.HashString(hash))
	log.Infof("run %s: image %s (%d instructions)", info.RunID, info.Hash, len(prog.Quads))

	result, err := s.worker.Do(ctx, func() (any, error) {
		return s.execute(ctx, prog, req.Msg), nil
	})
	if err != nil {
		s.runs.Finish(info.RunID, 0, err)
		return nil, connect.NewError(connect.CodeCanceled, err)
	}

	res := result.(*RunResponse)
	res.RunID = info.RunID
	res.Hash = info.Hash
	var runErr error
	if !res.Success {
		runErr = errors.New(res.Error)
	}
	s.runs.Finish(info.RunID, res.Steps, runErr)
	log.Infof("run %s: %d steps, success=%t", info.RunID, res.Steps, res.Success)
	return connect.NewResponse(res), nil
}

// GetRun returns the record of an earlier run.
func (s *ExecService) GetRun(
	ctx context.Context,
	req *connect.Request[GetRunRequest],
) (*connect.Response[RunInfo], error) {
	if req.Msg.RunID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("run id is required"))
	}
	info, ok := s.runs.Get(req.Msg.RunID)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("run %q not found", req.Msg.RunID))
	}
	return connect.NewResponse(&info), nil
}

// resolve decodes the inline image or fetches it from the store.
func (s *ExecService) resolve(req *RunRequest) (*image.Program, [32]byte, error) {
	var none [32]byte
	switch {
	case len(req.Image) > 0 && req.Hash != "":
		return nil, none, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("set either image or hash, not both"))

	case len(req.Image) > 0:
		prog, err := image.Unmarshal(req.Image)
		if err != nil {
			return nil, none, connect.NewError(connect.CodeInvalidArgument, err)
		}
		hash, err := image.Hash(prog)
		if err != nil {
			return nil, none, connect.NewError(connect.CodeInternal, err)
		}
		if req.Keep {
			if s.store == nil {
				return nil, none, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("server has no image store"))
			}
			if _, err := s.store.Put(prog); err != nil {
				return nil, none, connect.NewError(connect.CodeInternal, err)
			}
		}
		return prog, hash, nil

	case req.Hash != "":
		if s.store == nil {
			return nil, none, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("server has no image store"))
		}
		hash, err := image.ParseHash(req.Hash)
		if err != nil {
			return nil, none, connect.NewError(connect.CodeInvalidArgument, err)
		}
		prog, err := s.store.Get(hash)
		if errors.Is(err, imagestore.ErrNotFound) {
			return nil, none, connect.NewError(connect.CodeNotFound, err)
		}
		if err != nil {
			return nil, none, connect.NewError(connect.CodeInternal, err)
		}
		return prog, hash, nil
	}
	return nil, none, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("image or hash is required"))
}

// execute runs prog on a fresh VM with captured console I/O.
func (s *ExecService) execute(ctx context.Context, prog *image.Program, req *RunRequest) *RunResponse {
	var out bytes.Buffer
	machine := vm.New(prog.Quads, vm.Options{
		Stdout:   &out,
		Stdin:    strings.NewReader(req.Stdin),
		MaxSteps: s.stepLimit(req.MaxSteps),
	})
	err := machine.Run(ctx)

	res := &RunResponse{
		Stdout:  out.String(),
		Steps:   machine.Steps(),
		Success: err == nil,
	}
	if err != nil {
		res.Error = err.Error()
		if kind := errs.KindOf(err); kind != errs.KindUnknown {
			res.ErrorKind = kind.String()
		}
	}
	return res
}

// stepLimit applies the server cap to a requested limit. Zero means
// unlimited on either side.
func (s *ExecService) stepLimit(requested uint64) uint64 {
	switch {
	case s.maxSteps == 0:
		return requested
	case requested == 0 || requested > s.maxSteps:
		return s.maxSteps
	}
	return requested
}
