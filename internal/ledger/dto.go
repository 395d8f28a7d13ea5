package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbalanced means an entry's debits and credits disagree. This is a
	// programming error in a calculator, not a recoverable business error:
	// callers must surface it, never swallow or retry it.
	ErrUnbalanced = errors.New("ledger: entry does not balance")
	// ErrTooFewLines means an entry has fewer than two lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two lines")
)

// PostingLineInput describes a journal line for a posting request. Exactly one
// of Debit or Credit is positive.
type PostingLineInput struct {
	AccountCode string
	DebitPence  int64
	CreditPence int64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	BusinessID    int64
	Description   string
	ReferenceType string
	ReferenceID   string
	PostedBy      int64
	Lines         []PostingLineInput
}

// Validate ensures the entry balances before anything touches storage.
func (in PostingInput) Validate() error {
	if in.BusinessID == 0 {
		return errors.New("ledger: business required")
	}
	if in.ReferenceType == "" || in.ReferenceID == "" {
		return errors.New("ledger: reference required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountCode == "" {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.DebitPence < 0 || line.CreditPence < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.DebitPence > 0 && line.CreditPence > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		debit += line.DebitPence
		credit += line.CreditPence
	}
	if debit != credit {
		return fmt.Errorf("%w: debits %d credits %d", ErrUnbalanced, debit, credit)
	}
	return nil
}

// ReverseLines swaps debits and credits, producing the offsetting entry for a
// previously posted one.
func ReverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountCode: line.AccountCode,
			DebitPence:  line.CreditPence,
			CreditPence: line.DebitPence,
		})
	}
	return out
}

// Dr and Cr are small helpers keeping orchestrator posting code readable.
func Dr(account string, amountPence int64) PostingLineInput {
	return PostingLineInput{AccountCode: account, DebitPence: amountPence}
}

func Cr(account string, amountPence int64) PostingLineInput {
	return PostingLineInput{AccountCode: account, CreditPence: amountPence}
}

// CompactLines drops zero-amount lines so optional legs (no VAT, no credit
// remainder) disappear instead of posting noise.
func CompactLines(lines []PostingLineInput) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		if line.DebitPence == 0 && line.CreditPence == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
