package webpay

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTransactionType is the Webpay Plus normal sale.
const DefaultTransactionType = "TR_NORMAL_WS"

// InitTransactionRequest starts a Webpay Plus transaction.
type InitTransactionRequest struct {
	// TransactionType defaults to DefaultTransactionType.
	TransactionType string
	BuyOrder        string
	// SessionID is echoed back at the end of the transaction.
	SessionID string
	// ReturnURL receives the cardholder after authorization.
	ReturnURL string
	// FinalURL receives the cardholder after the Webpay voucher.
	FinalURL string
	Amount   decimal.Decimal
}

// InitTransactionResult holds the token and the URL the cardholder is sent
// to with it.
type InitTransactionResult struct {
	Token string `xml:"token"`
	URL   string `xml:"url"`
}

// CardDetail describes the card used.
type CardDetail struct {
	CardNumber         string `xml:"cardNumber"`
	CardExpirationDate string `xml:"cardExpirationDate"`
}

// DetailOutput is the financial detail of an authorization.
type DetailOutput struct {
	SharesNumber      int             `xml:"sharesNumber"`
	Amount            decimal.Decimal `xml:"amount"`
	CommerceCode      string          `xml:"commerceCode"`
	BuyOrder          string          `xml:"buyOrder"`
	AuthorizationCode string          `xml:"authorizationCode"`
	// PaymentTypeCode is VD (debit), VN, VC, SI, S2 or NC.
	PaymentTypeCode string `xml:"paymentTypeCode"`
	// ResponseCode is "0" when approved. See ResponseCodeMessage.
	ResponseCode string `xml:"responseCode"`
}

// TransactionResult is the outcome of a transaction. DetailOutput is the
// first entry of the details Webpay returns.
type TransactionResult struct {
	AccountingDate  string         `xml:"accountingDate"`
	BuyOrder        string         `xml:"buyOrder"`
	CardDetail      CardDetail     `xml:"cardDetail"`
	DetailOutput    DetailOutput   `xml:"-"`
	DetailOutputs   []DetailOutput `xml:"detailOutput"`
	SessionID       string         `xml:"sessionId"`
	TransactionDate string         `xml:"transactionDate"`
	URLRedirection  string         `xml:"urlRedirection"`
	// VCI is the authentication result: TSY, TSN, TO, ABO, U3 or empty.
	VCI string `xml:"VCI"`
}

// NullifyRequest cancels all or part of an authorized transaction.
type NullifyRequest struct {
	AuthorizationCode string
	AuthorizedAmount  decimal.Decimal
	BuyOrder          string
	// CommerceID defaults to the configured commerce code.
	CommerceID    string
	NullifyAmount decimal.Decimal
}

// NullifyResult is the outcome of a nullification.
type NullifyResult struct {
	Token             string          `xml:"token"`
	AuthorizationCode string          `xml:"authorizationCode"`
	AuthorizationDate string          `xml:"authorizationDate"`
	Balance           decimal.Decimal `xml:"balance"`
	NullifiedAmount   decimal.Decimal `xml:"nullifiedAmount"`
}

// CaptureRequest captures a deferred authorization.
type CaptureRequest struct {
	AuthorizationCode string
	BuyOrder          string
	// CommerceID defaults to the configured commerce code.
	CommerceID    string
	CaptureAmount decimal.Decimal
}

// CaptureResult is the outcome of a capture.
type CaptureResult struct {
	Token             string          `xml:"token"`
	AuthorizationCode string          `xml:"authorizationCode"`
	AuthorizationDate string          `xml:"authorizationDate"`
	CapturedAmount    decimal.Decimal `xml:"capturedAmount"`
}

type transactionDetailsInput struct {
	Amount       decimal.Decimal `xml:"amount"`
	BuyOrder     string          `xml:"buyOrder"`
	CommerceCode string          `xml:"commerceCode"`
}

type initTransactionArgs struct {
	Input struct {
		TransactionType    string                  `xml:"wSTransactionType"`
		SessionID          string                  `xml:"sessionId,omitempty"`
		ReturnURL          string                  `xml:"returnURL"`
		FinalURL           string                  `xml:"finalURL"`
		BuyOrder           string                  `xml:"buyOrder"`
		TransactionDetails transactionDetailsInput `xml:"transactionDetails"`
	} `xml:"wsInitTransactionInput"`
}

type tokenArgs struct {
	Token string `xml:"tokenInput"`
}

type nullifyArgs struct {
	Input struct {
		AuthorizationCode string          `xml:"authorizationCode"`
		AuthorizedAmount  decimal.Decimal `xml:"authorizedAmount"`
		BuyOrder          string          `xml:"buyOrder"`
		CommerceID        string          `xml:"commerceId"`
		NullifyAmount     decimal.Decimal `xml:"nullifyAmount"`
	} `xml:"nullificationInput"`
}

type captureArgs struct {
	Input struct {
		AuthorizationCode string          `xml:"authorizationCode"`
		BuyOrder          string          `xml:"buyOrder"`
		CaptureAmount     decimal.Decimal `xml:"captureAmount"`
		CommerceID        string          `xml:"commerceId"`
	} `xml:"captureInput"`
}

// InitTransaction registers a transaction and returns the token and URL
// the cardholder must be posted to.
func (c *Client) InitTransaction(ctx context.Context, req *InitTransactionRequest) (*InitTransactionResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args initTransactionArgs
	args.Input.TransactionType = req.TransactionType
	if args.Input.TransactionType == "" {
		args.Input.TransactionType = DefaultTransactionType
	}
	args.Input.SessionID = req.SessionID
	args.Input.ReturnURL = req.ReturnURL
	args.Input.FinalURL = req.FinalURL
	args.Input.BuyOrder = req.BuyOrder
	args.Input.TransactionDetails = transactionDetailsInput{
		Amount:       req.Amount,
		BuyOrder:     req.BuyOrder,
		CommerceCode: c.cfg.CommerceCode,
	}

	out := &InitTransactionResult{}
	if err := c.call(ctx, EndpointNormal, "initTransaction", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransactionResult fetches the outcome of the transaction identified
// by token, as posted back in token_ws. AcknowledgeTransaction must follow
// within 30 seconds.
func (c *Client) GetTransactionResult(ctx context.Context, token string) (*TransactionResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingParams
	}
	out := &TransactionResult{}
	if err := c.call(ctx, EndpointNormal, "getTransactionResult", tokenArgs{Token: token}, out); err != nil {
		return nil, err
	}
	if len(out.DetailOutputs) > 0 {
		out.DetailOutput = out.DetailOutputs[0]
	}
	return out, nil
}

// AcknowledgeTransaction confirms to Webpay that the result was received.
func (c *Client) AcknowledgeTransaction(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrMissingParams
	}
	return c.call(ctx, EndpointNormal, "acknowledgeTransaction", tokenArgs{Token: token}, nil)
}

// Nullify cancels all or part of an authorized transaction.
func (c *Client) Nullify(ctx context.Context, req *NullifyRequest) (*NullifyResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args nullifyArgs
	args.Input.AuthorizationCode = req.AuthorizationCode
	args.Input.AuthorizedAmount = req.AuthorizedAmount
	args.Input.BuyOrder = req.BuyOrder
	args.Input.CommerceID = c.commerceID(req.CommerceID)
	args.Input.NullifyAmount = req.NullifyAmount

	out := &NullifyResult{}
	if err := c.call(ctx, EndpointNullify, "nullify", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Capture captures a transaction authorized with deferred capture.
func (c *Client) Capture(ctx context.Context, req *CaptureRequest) (*CaptureResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args captureArgs
	args.Input.AuthorizationCode = req.AuthorizationCode
	args.Input.BuyOrder = req.BuyOrder
	args.Input.CaptureAmount = req.CaptureAmount
	args.Input.CommerceID = c.commerceID(req.CommerceID)

	out := &CaptureResult{}
	if err := c.call(ctx, EndpointNullify, "capture", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) commerceID(id string) string {
	if id == "" {
		return c.cfg.CommerceCode
	}
	return id
}
