package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validInput() PostingInput {
	return PostingInput{
		BusinessID:    1,
		Description:   "cash sale",
		ReferenceType: "SALES_INVOICE",
		ReferenceID:   "42",
		Lines: []PostingLineInput{
			Dr(AccountCash, 1150),
			Cr(AccountSales, 1000),
			Cr(AccountVATPayable, 150),
		},
	}
}

func TestPostingInputValidate(t *testing.T) {
	require.NoError(t, validInput().Validate())
}

func TestUnbalancedEntryRejected(t *testing.T) {
	in := validInput()
	in.Lines[0].DebitPence = 1100
	require.ErrorIs(t, in.Validate(), ErrUnbalanced)
}

func TestTooFewLines(t *testing.T) {
	in := validInput()
	in.Lines = in.Lines[:1]
	require.ErrorIs(t, in.Validate(), ErrTooFewLines)
}

func TestLineCannotBeBothSides(t *testing.T) {
	in := validInput()
	in.Lines[0].CreditPence = 10
	in.Lines[1].CreditPence -= 10
	require.Error(t, in.Validate())
}

func TestNegativeAmountsRejected(t *testing.T) {
	in := validInput()
	in.Lines[0].DebitPence = -1150
	require.Error(t, in.Validate())
}

func TestReverseLinesBalances(t *testing.T) {
	original := []JournalLine{
		{AccountCode: AccountCash, DebitPence: 500},
		{AccountCode: AccountSales, CreditPence: 500},
	}
	reversed := ReverseLines(original)
	in := PostingInput{
		BusinessID:    1,
		ReferenceType: "SALES_RETURN",
		ReferenceID:   "42",
		Lines:         reversed,
	}
	require.NoError(t, in.Validate())
	require.Equal(t, int64(500), reversed[0].CreditPence)
	require.Equal(t, int64(500), reversed[1].DebitPence)
}

func TestCompactLinesDropsZeroLegs(t *testing.T) {
	lines := CompactLines([]PostingLineInput{
		Dr(AccountCash, 900),
		Dr(AccountAR, 0),
		Cr(AccountSales, 900),
		Cr(AccountVATPayable, 0),
	})
	require.Len(t, lines, 2)
}
