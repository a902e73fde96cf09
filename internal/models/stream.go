package models

// TransactionEvent is one item of a lazy transaction stream: either a
// normalized transaction or the error that ended the walk. After an event
// with Err set, the stream closes.
type TransactionEvent struct {
	Tx  *BlockchainTransaction
	Err error
}
