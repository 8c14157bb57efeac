package publish

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/wagmi-world/protocol/publish/artifacts"
)

type (
	Resolver interface {
		Lookup(name string) (*artifacts.Artifact, error)
	}

	// Chain deploys in two separately awaitable stages.
	Chain interface {
		Submit(ctx context.Context, data []byte) (PendingDeployment, error)
		Confirm(ctx context.Context, pending PendingDeployment) (DeployResult, error)
		Close() error
	}

	DialFunc func(req DeploymentRequest) (Chain, error)

	Deployment struct {
		DeployResult
		ContractName    string
		QualifiedName   string
		NetworkName     string
		ConstructorArgs []byte
	}

	// Runner resolves, deploys and confirms one contract per Run. A zero
	// timeout leaves the corresponding stage bounded only by ctx.
	Runner struct {
		Resolver Resolver
		Dial     DialFunc
		Out      io.Writer
		Log      *zap.Logger
		// Check runs against the resolved artifact before anything is dialed.
		Check          func(*artifacts.Artifact) error
		SubmitTimeout  time.Duration
		ConfirmTimeout time.Duration
	}
)

func (r *Runner) Run(ctx context.Context, req DeploymentRequest) (Deployment, error) {
	if err := req.Validate(); err != nil {
		return Deployment{}, err
	}

	artifact, err := r.Resolver.Lookup(req.ContractName)
	if err != nil {
		return Deployment{}, fmt.Errorf("resolve %s: %w", req.ContractName, err)
	}

	if r.Check != nil {
		if err := r.Check(artifact); err != nil {
			return Deployment{}, err
		}
	}

	ctorArgs, err := artifact.EncodeConstructorArgs(req.ConstructorArgs...)
	if err != nil {
		return Deployment{}, fmt.Errorf("%w: %w", ErrMissingConfiguration, err)
	}
	code, err := artifact.CreationCode()
	if err != nil {
		return Deployment{}, err
	}
	data := append(code, ctorArgs...)

	chain, err := r.Dial(req)
	if err != nil {
		return Deployment{}, err
	}
	defer chain.Close()

	log := r.Log.With(zap.String("contract", artifact.FullyQualifiedName()), zap.String("network", req.NetworkName))
	log.Info("submitting deployment", zap.Stringer("from", req.From()), zap.Int("bytes", len(data)))

	pending, err := r.submit(ctx, chain, data)
	if err != nil {
		return Deployment{}, fmt.Errorf("deploy %s: %w", req.ContractName, err)
	}

	log.Info("waiting for confirmation", zap.Stringer("tx", pending.TxHash))
	res, err := r.confirm(ctx, chain, pending)
	if err != nil {
		return Deployment{}, fmt.Errorf("confirm %s: %w", req.ContractName, err)
	}

	if _, err := fmt.Fprintf(r.Out, "%s deployed to %s\n", req.label(), res.ContractAddress.Hex()); err != nil {
		return Deployment{}, err
	}

	return Deployment{
		DeployResult:    res,
		ContractName:    artifact.ContractName,
		QualifiedName:   artifact.FullyQualifiedName(),
		NetworkName:     req.NetworkName,
		ConstructorArgs: ctorArgs,
	}, nil
}

func (r *Runner) submit(ctx context.Context, chain Chain, data []byte) (PendingDeployment, error) {
	ctx, cancel := withOptionalTimeout(ctx, r.SubmitTimeout)
	defer cancel()
	return chain.Submit(ctx, data)
}

func (r *Runner) confirm(ctx context.Context, chain Chain, pending PendingDeployment) (DeployResult, error) {
	ctx, cancel := withOptionalTimeout(ctx, r.ConfirmTimeout)
	defer cancel()
	return chain.Confirm(ctx, pending)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// DialDeployer returns a DialFunc that connects a Deployer to the request's network.
func DialDeployer(opts Options, log *zap.Logger) DialFunc {
	return func(req DeploymentRequest) (Chain, error) {
		o := opts
		if req.ChainID != 0 {
			o.ChainID = req.ChainID
		}
		return NewDeployer(req.Network, req.Signer, o, log)
	}
}

var _ Chain = (*Deployer)(nil)
