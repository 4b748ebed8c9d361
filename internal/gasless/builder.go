package gasless

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openharvest/harvestd/internal/domain"
)

// Gas budgets for the inner call. Most writes fit comfortably in the
// default; order-state transitions touch a single storage slot and get less;
// admin operations walk unbounded request lists and get the ceiling.
const (
	DefaultGasBudget    uint64 = 500_000
	TransitionGasBudget uint64 = 150_000
	AdminGasBudget      uint64 = 1_000_000
)

// gasBudgetByFunction overrides the default per inner function.
var gasBudgetByFunction = map[string]uint64{
	"acceptOrder":    TransitionGasBudget,
	"shipOrder":      TransitionGasBudget,
	"completeOrder":  TransitionGasBudget,
	"cancelOrder":    TransitionGasBudget,
	"approveRequest": AdminGasBudget,
	"resolveDispute": AdminGasBudget,
}

// defaultDeadlineWindow is how far in the future a request's deadline is set
// at build time.
const defaultDeadlineWindow = 10 * time.Minute

// Call names the inner contract call a feature wants relayed. Each feature
// service is a one-line caller constructing one of these.
type Call struct {
	Target   domain.Target
	Function string
	Args     []any

	// GasBudget overrides the per-function default when non-zero.
	GasBudget uint64
}

// TargetBinding pairs an allow-listed target's deployed address with its ABI.
type TargetBinding struct {
	Address common.Address
	ABI     abi.ABI
}

// Builder assembles canonical forward requests: allow-list enforcement, ABI
// encoding, gas budget selection, and deadline stamping. It holds no mutable
// state; the nonce is an input because it must come from a fresh chain read
// every attempt.
type Builder struct {
	targets map[domain.Target]TargetBinding
	window  time.Duration
	now     func() time.Time
}

// NewBuilder creates a Builder over the allow-listed targets. window <= 0
// selects the default 10 minutes.
func NewBuilder(targets map[domain.Target]TargetBinding, window time.Duration) *Builder {
	if window <= 0 {
		window = defaultDeadlineWindow
	}
	return &Builder{targets: targets, window: window, now: time.Now}
}

// Build produces an immutable ForwardRequest for the given call. It fails —
// before any signature prompt can be issued — when the target is not
// allow-listed or the arguments do not match the target function's ABI.
func (b *Builder) Build(from common.Address, nonce *big.Int, call Call) (domain.ForwardRequest, error) {
	binding, ok := b.targets[call.Target]
	if !ok {
		return domain.ForwardRequest{}, fmt.Errorf("gasless: target %q: %w", call.Target, domain.ErrUnknownTarget)
	}

	data, err := binding.ABI.Pack(call.Function, call.Args...)
	if err != nil {
		return domain.ForwardRequest{}, fmt.Errorf("gasless: encode %s.%s: %w", call.Target, call.Function, err)
	}

	gas := call.GasBudget
	if gas == 0 {
		gas = gasBudgetByFunction[call.Function]
	}
	if gas == 0 {
		gas = DefaultGasBudget
	}

	return domain.ForwardRequest{
		From:     from,
		To:       binding.Address,
		Value:    new(big.Int), // no payable gasless calls in this system
		Gas:      gas,
		Nonce:    new(big.Int).Set(nonce),
		Deadline: uint64(b.now().Add(b.window).Unix()),
		Data:     data,
	}, nil
}

// TargetAddress resolves an allow-listed target's deployed address.
func (b *Builder) TargetAddress(t domain.Target) (common.Address, bool) {
	binding, ok := b.targets[t]
	return binding.Address, ok
}
