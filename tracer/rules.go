package tracer

import "github.com/ethereum/go-ethereum/common"

// Level identifies which entity's frame is being checked: the sender
// account is level 0, its factory level 1, its paymaster level 2.
type Level int

const (
	LevelAccount Level = iota
	LevelFactory
	LevelPaymaster
)

// ViolationKind classifies a rule violation for the caller (package
// validation) to map onto its opcode, storage, call-target or code error
// types returned to the RPC caller.
type ViolationKind int

const (
	ViolationForbiddenOpcode ViolationKind = iota
	ViolationStorageAccess
	ViolationCallTarget
	ViolationEmptyCode
	ViolationExtraCreate2
	ViolationUnaccompaniedGas
)

// Violation is one ERC-7562 rule breach found in a Frame.
type Violation struct {
	Kind    ViolationKind
	Entity  common.Address
	Opcode  Opcode
	Slot    *common.Hash
	Addr    *common.Address
}

var alwaysForbidden = map[Opcode]bool{
	GASPRICE: true, GASLIMIT: true, PREVRANDAO: true, TIMESTAMP: true,
	BASEFEE: true, BLOCKHASH: true, NUMBER: true, SELFBALANCE: true,
	BALANCE: true, ORIGIN: true, COINBASE: true, SELFDESTRUCT: true,
}

// StakeChecker answers whether an address meets the bundler's staking
// thresholds, used to decide whether its storage may be touched by another
// entity's frame.
type StakeChecker func(common.Address) bool

// AssociatedSlot reports whether slot is one of sender's "associated
// slots" per ERC-7562 (slot == keccak256(sender ++ A), or a small range
// derived from it) — the caller (package validation) owns the concrete
// keccak computation since it already has the sender address in scope;
// this package only consumes the predicate.
type AssociatedSlot func(sender common.Address, slot common.Hash) bool

// CheckRules walks frame's event stream and returns every ERC-7562
// violation found at the given entity level.
func CheckRules(frame Frame, level Level, sender, entryPoint common.Address, staked StakeChecker, associated AssociatedSlot) []Violation {
	var violations []Violation

	createSeen := 0
	for i, ev := range frame.Events {
		if alwaysForbidden[ev.Opcode] {
			violations = append(violations, Violation{Kind: ViolationForbiddenOpcode, Entity: frame.Entity, Opcode: ev.Opcode})
			continue
		}

		switch ev.Opcode {
		case GAS:
			if !gasFollowedByCall(frame.Events, i) {
				violations = append(violations, Violation{Kind: ViolationUnaccompaniedGas, Entity: frame.Entity, Opcode: GAS})
			}

		case CREATE:
			// CREATE is only permitted at level 0, for the initial account
			// creation itself (the factory frame uses CREATE2, see below).
			if level != LevelAccount {
				violations = append(violations, Violation{Kind: ViolationForbiddenOpcode, Entity: frame.Entity, Opcode: CREATE})
			}

		case CREATE2:
			createSeen++
			if level != LevelFactory {
				violations = append(violations, Violation{Kind: ViolationForbiddenOpcode, Entity: frame.Entity, Opcode: CREATE2})
			}
			if ev.Created != nil && *ev.Created != sender {
				violations = append(violations, Violation{Kind: ViolationExtraCreate2, Entity: frame.Entity, Addr: ev.Created})
			}

		case SLOAD, SSTORE:
			if ev.Storage == nil {
				continue
			}
			if !storageAllowed(ev.Storage, frame.Entity, sender, level, staked, associated) {
				violations = append(violations, Violation{
					Kind: ViolationStorageAccess, Entity: frame.Entity, Opcode: ev.Opcode,
					Slot: slotPtr(ev.Storage.Slot), Addr: addrPtr(ev.Storage.Address),
				})
			}

		case EXTCODESIZE, EXTCODECOPY, EXTCODEHASH:
			if ev.CallTarget != nil {
				if hash, ok := frame.CodeHashes[*ev.CallTarget]; !ok || hash == (common.Hash{}) {
					violations = append(violations, Violation{Kind: ViolationEmptyCode, Entity: frame.Entity, Opcode: ev.Opcode, Addr: ev.CallTarget})
				}
			}

		default:
			if ev.Opcode.IsCall() && ev.CallTarget != nil {
				if v, bad := checkCallTarget(frame, *ev.CallTarget, ev.Selector, entryPoint); bad {
					violations = append(violations, v)
				}
			}
		}
	}

	if level == LevelFactory && createSeen != 1 {
		violations = append(violations, Violation{Kind: ViolationExtraCreate2, Entity: frame.Entity})
	}

	return violations
}

// gasFollowedByCall permits GAS only when immediately followed by a CALL-
// family opcode, with at most one intervening POP, matching the pattern
// observed in practice for Solidity-emitted bytecode.
func gasFollowedByCall(events []Event, gasIndex int) bool {
	for j := gasIndex + 1; j < len(events) && j <= gasIndex+2; j++ {
		if events[j].Opcode.IsCall() {
			return true
		}
		if events[j].Opcode != POP {
			return false
		}
	}
	return false
}

// entryPointDepositSelector is keccak256("depositTo(address)")[:4].
var entryPointDepositSelector = [4]byte{0xb7, 0x60, 0xfa, 0xf9}

func checkCallTarget(frame Frame, target common.Address, selector [4]byte, entryPoint common.Address) (Violation, bool) {
	// Calls to the EntryPoint are forbidden except depositTo(address); the
	// outer handleOps call is the frame boundary, not an event inside it,
	// so only depositTo needs an explicit allowance here.
	if target == entryPoint && selector != entryPointDepositSelector {
		return Violation{Kind: ViolationCallTarget, Entity: frame.Entity, Addr: &target}, true
	}
	hash, seen := frame.CodeHashes[target]
	if seen && hash == (common.Hash{}) {
		return Violation{Kind: ViolationEmptyCode, Entity: frame.Entity, Addr: &target}, true
	}
	return Violation{}, false
}

func storageAllowed(acc *StorageAccess, entity, sender common.Address, level Level, staked StakeChecker, associated AssociatedSlot) bool {
	// Always allowed: the entity's own storage.
	if acc.Address == entity {
		return true
	}
	// Allowed against the sender's storage if the account is staked, or the
	// slot is one of the sender's associated slots.
	if acc.Address == sender {
		if associated != nil && associated(sender, acc.Slot) {
			return true
		}
		if staked != nil && staked(sender) {
			return true
		}
		return false
	}
	// External storage is allowed only if the accessed contract is staked.
	if staked != nil && staked(acc.Address) {
		return true
	}
	return false
}

func slotPtr(h common.Hash) *common.Hash    { return &h }
func addrPtr(a common.Address) *common.Address { return &a }
