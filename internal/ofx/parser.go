// Package ofx turns OFX/QFX credit-card statements into purchase import
// candidates.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/cardcycle/internal/engine"
	"github.com/Veraticus/cardcycle/internal/fingerprint"
	"github.com/Veraticus/cardcycle/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tag at end of line with no closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Options scopes the candidates produced from one statement file.
type Options struct {
	// StatementMonth, when set, overrides the month resolved from the
	// posting date for every candidate.
	StatementMonth time.Time
	OwnerID        string
	CardID         string
}

// Parser implements OFX/QFX credit-card statement parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// ParseFile parses a credit-card statement and returns one import candidate
// per charge. Payments and other credits are skipped. A description carrying
// an "installment k/n" marker becomes a purchase of n installments starting
// at k whose total is the charged amount times n.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader, opts Options) ([]engine.Candidate, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	if len(resp.Bank) > 0 {
		slog.Warn("Ignoring bank statements in OFX file", "count", len(resp.Bank))
	}

	var candidates []engine.Candidate
	var ccStmts, skipped int

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++

		for _, ofxTx := range stmt.BankTranList.Transactions {
			candidate, ok, err := p.convertTransaction(ofxTx, opts)
			if err != nil {
				slog.Warn("Failed to convert OFX transaction",
					"account", stmt.CCAcctFrom.AcctID,
					"fitid", ofxTx.FiTID,
					"error", err)
				skipped++
				continue
			}
			if !ok {
				skipped++
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	slog.Info("Parsed OFX file",
		"candidates", len(candidates),
		"skipped", skipped,
		"cc_statements", ccStmts)

	return candidates, nil
}

// convertTransaction maps one OFX transaction to a candidate. ok is false for
// credits, which never become purchases.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, opts Options) (engine.Candidate, bool, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.Rat.FloatString(2))
	if err != nil {
		return engine.Candidate{}, false, fmt.Errorf("invalid amount: %w", err)
	}
	// OFX uses negative amounts for charges
	if !amount.IsNegative() {
		return engine.Candidate{}, false, nil
	}
	amount = amount.Abs()

	name := p.extractMerchantName(ofxTx)
	purchase := model.Purchase{
		OwnerID:          opts.OwnerID,
		CardID:           opts.CardID,
		PurchaseDate:     ofxTx.DtPosted.Time,
		StatementMonth:   opts.StatementMonth,
		Description:      fingerprint.StripInstallmentSuffix(name),
		TotalAmount:      amount,
		InstallmentCount: 1,
		StartIndex:       1,
		Kind:             model.KindSingle,
	}

	if k, n, found := fingerprint.ParseInstallmentSuffix(name); found && n > 1 {
		purchase.InstallmentCount = n
		purchase.StartIndex = k
		purchase.TotalAmount = amount.Mul(decimal.NewFromInt(int64(n)))
		purchase.Kind = model.KindInstallment
	}
	if purchase.Description == "" {
		purchase.Description = name
	}

	key := string(ofxTx.FiTID)
	if key == "" {
		key = fmt.Sprintf("%s|%s", ofxTx.DtPosted.Format(time.DateOnly), name)
	}

	return engine.Candidate{Key: key, Purchase: purchase}, true, nil
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)

	// MEMO sometimes has the better merchant info
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}

	name = strings.TrimSpace(name)

	prefixes := []string{
		"PURCHASE AUTHORIZED ON ",
		"CARD PURCHASE ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"POS PURCHASE ",
		"COMPRA ",
	}

	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting dates
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// GetAccounts extracts unique credit-card account IDs from the OFX file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.CCAcctFrom.AcctID == "" {
			continue
		}
		id := string(stmt.CCAcctFrom.AcctID)
		if !seen[id] {
			seen[id] = true
			accounts = append(accounts, id)
		}
	}

	return accounts, nil
}
