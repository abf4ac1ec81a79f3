// Package ledger defines the engine's boundary contracts with its external
// collaborators: the custody authority holding collateralized positions, the
// token transfer authority, and the host-chain height source. In-memory
// implementations back tests and single-process deployments.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/cdpmarket/auctionengine/core"
)

// CustodyLedger is the external position custody authority. The engine calls
// TransferCustody exactly once on create, once on settle, once on cancel.
type CustodyLedger interface {
	// CurrentHolder returns the identity currently holding the position.
	CurrentHolder(position core.PositionID) (core.Address, error)

	// TransferCustody moves the position from one holder to another. The
	// transfer fails if from is not the current holder.
	TransferCustody(position core.PositionID, from, to core.Address) error
}

// TokenLedger is the external asset ledger, ERC20-style. The spender is the
// identity performing the transfer: moving another owner's funds requires a
// prior allowance, moving the spender's own funds does not.
type TokenLedger interface {
	TransferFrom(token, spender, owner, recipient core.Address, amount decimal.Decimal) error
	BalanceOf(token, account core.Address) decimal.Decimal
}

// HeightSource supplies the current host-chain block height. Deadline
// preconditions are evaluated against one reading taken at the start of each
// operation.
type HeightSource interface {
	CurrentHeight() uint64
}
