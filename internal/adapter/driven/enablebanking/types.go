package enablebanking

import (
	"strings"
	"time"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
)

// Wire representations of the Enable Banking API. Kept separate from the
// domain model so upstream schema drift stays contained in this package.

type applicationJSON struct {
	Name         string   `json:"name"`
	RedirectURLs []string `json:"redirect_urls"`
}

type aspspsResponse struct {
	ASPSPs []aspspJSON `json:"aspsps"`
}

type aspspJSON struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo"`
}

type accessJSON struct {
	ValidUntil string `json:"valid_until"`
}

type startAuthRequest struct {
	Access      accessJSON `json:"access"`
	ASPSP       aspspJSON  `json:"aspsp"`
	State       string     `json:"state"`
	RedirectURL string     `json:"redirect_url"`
	PSUType     string     `json:"psu_type"`
}

type startAuthResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type createSessionRequest struct {
	Code string `json:"code"`
}

type createSessionResponse struct {
	SessionID    string  `json:"session_id"`
	AccessToken  string  `json:"access_token"`
	RefreshToken *string `json:"refresh_token"`
}

type sessionResponse struct {
	Status     string        `json:"status"`
	ASPSP      aspspJSON     `json:"aspsp"`
	Accounts   []accountJSON `json:"accounts"`
	Access     accessJSON    `json:"access"`
	Authorized string        `json:"authorized"`
}

type accountJSON struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
	IBAN string `json:"iban"`
}

type balancesResponse struct {
	Balances []balanceJSON `json:"balances"`
}

type amountJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type balanceJSON struct {
	Name          string     `json:"name"`
	BalanceType   string     `json:"balance_type"`
	BalanceAmount amountJSON `json:"balance_amount"`
}

type transactionsResponse struct {
	Transactions    []transactionJSON `json:"transactions"`
	ContinuationKey string            `json:"continuation_key"`
}

type partyJSON struct {
	Name string `json:"name"`
}

type transactionJSON struct {
	EntryReference        string     `json:"entry_reference"`
	TransactionAmount     amountJSON `json:"transaction_amount"`
	CreditDebitIndicator  string     `json:"credit_debit_indicator"`
	Status                string     `json:"status"`
	BookingDate           string     `json:"booking_date"`
	ValueDate             string     `json:"value_date"`
	Creditor              *partyJSON `json:"creditor"`
	Debtor                *partyJSON `json:"debtor"`
	RemittanceInformation []string   `json:"remittance_information"`
}

func mapBank(a aspspJSON) model.Bank {
	return model.Bank{
		Name:    a.Name,
		Country: a.Country,
		Logo:    a.Logo,
	}
}

func mapAccount(a accountJSON) model.Account {
	return model.Account{
		UID:  a.UID,
		Name: a.Name,
		IBAN: a.IBAN,
	}
}

func mapSession(s sessionResponse) model.Session {
	accounts := make([]model.Account, 0, len(s.Accounts))
	for _, a := range s.Accounts {
		accounts = append(accounts, mapAccount(a))
	}

	return model.Session{
		Status:   s.Status,
		Bank:     mapBank(s.ASPSP),
		Accounts: accounts,
		Access: model.SessionAccess{
			ValidUntil: parseUpstreamTime(s.Access.ValidUntil),
		},
		Authorized: parseUpstreamTime(s.Authorized),
	}
}

func mapBalance(b balanceJSON) model.Balance {
	return model.Balance{
		Name:     b.Name,
		Type:     b.BalanceType,
		Amount:   b.BalanceAmount.Amount,
		Currency: b.BalanceAmount.Currency,
	}
}

func mapTransaction(tx transactionJSON) model.Transaction {
	var creditor, debtor string
	if tx.Creditor != nil {
		creditor = tx.Creditor.Name
	}
	if tx.Debtor != nil {
		debtor = tx.Debtor.Name
	}

	return model.Transaction{
		EntryReference: tx.EntryReference,
		Amount:         tx.TransactionAmount.Amount,
		Currency:       tx.TransactionAmount.Currency,
		CreditDebit:    tx.CreditDebitIndicator,
		Status:         tx.Status,
		BookingDate:    tx.BookingDate,
		ValueDate:      tx.ValueDate,
		CreditorName:   creditor,
		DebtorName:     debtor,
		Description:    strings.Join(tx.RemittanceInformation, " "),
	}
}

// parseUpstreamTime parses the aggregator's RFC3339 timestamps, returning
// the zero time for absent values.
func parseUpstreamTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
