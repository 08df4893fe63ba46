package webpay

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// OneClickMall is the multi-merchant variant of OneClick: one enrollment,
// payments split across the stores of a mall.
type OneClickMall struct {
	client *Client
}

// MallInscriptionRequest starts a mall enrollment.
type MallInscriptionRequest struct {
	Username  string
	Email     string
	ReturnURL string
}

// MallInscriptionResult holds the token and the enrollment form URL.
type MallInscriptionResult struct {
	Token              string `xml:"token"`
	URLInscriptionForm string `xml:"urlInscriptionForm"`
}

// MallFinishInscriptionResult is the outcome of a mall enrollment.
type MallFinishInscriptionResult struct {
	ResponseCode       string `xml:"responseCode"`
	AuthorizationCode  string `xml:"authorizationCode"`
	CardType           string `xml:"cardType"`
	CardNumber         string `xml:"cardNumber"`
	CardExpirationDate string `xml:"cardExpirationDate"`
	CardOrigin         string `xml:"cardOrigin"`
	TbkUser            string `xml:"tbkUser"`
}

// RemoveInscriptionRequest deletes a mall enrollment.
type RemoveInscriptionRequest struct {
	TbkUser  string
	Username string
}

// StoreInput is one store's share of a mall payment.
type StoreInput struct {
	CommerceID   string          `xml:"commerceId"`
	BuyOrder     string          `xml:"buyOrder"`
	Amount       decimal.Decimal `xml:"amount"`
	SharesNumber int             `xml:"sharesNumber"`
}

// MallAuthorizeRequest charges an enrolled card across stores.
type MallAuthorizeRequest struct {
	Username string
	TbkUser  string
	// BuyOrder identifies the whole mall purchase.
	BuyOrder string
	Stores   []StoreInput
}

// StoreOutput is the outcome of one store's sub-transaction.
type StoreOutput struct {
	CommerceID        string          `xml:"commerceId"`
	BuyOrder          string          `xml:"buyOrder"`
	Amount            decimal.Decimal `xml:"amount"`
	PaymentType       string          `xml:"paymentType"`
	SharesNumber      int             `xml:"sharesNumber"`
	ShareAmount       decimal.Decimal `xml:"shareAmount"`
	AuthorizationCode string          `xml:"authorizationCode"`
	ResponseCode      string          `xml:"responseCode"`
	// ResponseCodeMessage is the Spanish description of ResponseCode.
	ResponseCodeMessage string `xml:"-"`
}

// MallAuthorizeResult is the outcome of a mall payment.
type MallAuthorizeResult struct {
	CommerceID        string        `xml:"commerceId"`
	BuyOrder          string        `xml:"buyOrder"`
	SettlementDate    string        `xml:"settlementDate"`
	AuthorizationDate string        `xml:"authorizationDate"`
	Stores            []StoreOutput `xml:"storesOutput"`
}

// StoreReverse is the reversal outcome of one store.
type StoreReverse struct {
	CommerceID  string `xml:"commerceId"`
	BuyOrder    string `xml:"buyOrder"`
	Reversed    bool   `xml:"reversed"`
	ReverseCode string `xml:"reverseCode"`
}

// MallReverseResult lists the per-store reversals.
type MallReverseResult struct {
	Stores []StoreReverse `xml:"storesReverse"`
}

// MallNullifyRequest cancels all or part of one store's sub-transaction.
type MallNullifyRequest struct {
	CommerceID        string
	BuyOrder          string
	AuthorizedAmount  decimal.Decimal
	AuthorizationCode string
	NullifyAmount     decimal.Decimal
}

// MallNullifyResult is the outcome of a mall nullification.
type MallNullifyResult struct {
	Token             string          `xml:"token"`
	BuyOrder          string          `xml:"buyOrder"`
	CommerceID        string          `xml:"commerceId"`
	AuthorizationCode string          `xml:"authorizationCode"`
	AuthorizationDate string          `xml:"authorizationDate"`
	NullifiedAmount   decimal.Decimal `xml:"nullifiedAmount"`
	Balance           decimal.Decimal `xml:"balance"`
}

// ReverseNullificationRequest reverses a nullification after an
// operational failure.
type ReverseNullificationRequest struct {
	BuyOrder      string
	CommerceID    string
	NullifyAmount decimal.Decimal
}

type mallInscriptionArgs struct {
	Input struct {
		Username  string `xml:"username"`
		Email     string `xml:"email"`
		ReturnURL string `xml:"returnUrl"`
	} `xml:"input"`
}

type mallTokenArgs struct {
	Input struct {
		Token string `xml:"token"`
	} `xml:"input"`
}

type mallRemoveArgs struct {
	Input struct {
		TbkUser  string `xml:"tbkUser"`
		Username string `xml:"username"`
	} `xml:"input"`
}

type mallAuthorizeArgs struct {
	Input struct {
		Username string       `xml:"username"`
		TbkUser  string       `xml:"tbkUser"`
		BuyOrder string       `xml:"buyOrder"`
		Stores   []StoreInput `xml:"storesInput"`
	} `xml:"input"`
}

type mallReverseArgs struct {
	Input struct {
		BuyOrder string `xml:"buyOrder"`
	} `xml:"input"`
}

type mallNullifyArgs struct {
	Input struct {
		CommerceID        string          `xml:"commerceId"`
		BuyOrder          string          `xml:"buyOrder"`
		AuthorizedAmount  decimal.Decimal `xml:"authorizedAmount"`
		AuthorizationCode string          `xml:"authorizationCode"`
		NullifyAmount     decimal.Decimal `xml:"nullifyAmount"`
	} `xml:"input"`
}

type mallReverseNullificationArgs struct {
	Input struct {
		BuyOrder      string          `xml:"buyOrder"`
		CommerceID    string          `xml:"commerceId"`
		NullifyAmount decimal.Decimal `xml:"nullifyAmount"`
	} `xml:"input"`
}

type resultReturn struct {
	Result bool `xml:"result"`
}

// InitInscription starts enrolling a card for username.
func (m *OneClickMall) InitInscription(ctx context.Context, req *MallInscriptionRequest) (*MallInscriptionResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args mallInscriptionArgs
	args.Input.Username = req.Username
	args.Input.Email = req.Email
	args.Input.ReturnURL = req.ReturnURL

	out := &MallInscriptionResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "initInscription", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FinishInscription completes the enrollment identified by token.
func (m *OneClickMall) FinishInscription(ctx context.Context, token string) (*MallFinishInscriptionResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingParams
	}
	var args mallTokenArgs
	args.Input.Token = token

	out := &MallFinishInscriptionResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "finishInscription", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveInscription deletes an enrollment. It reports whether Webpay
// removed it.
func (m *OneClickMall) RemoveInscription(ctx context.Context, req *RemoveInscriptionRequest) (bool, error) {
	if req == nil {
		return false, ErrMissingParams
	}
	var args mallRemoveArgs
	args.Input.TbkUser = req.TbkUser
	args.Input.Username = req.Username

	out := &resultReturn{}
	if err := m.client.call(ctx, EndpointOneClickMall, "removeInscription", args, out); err != nil {
		return false, err
	}
	return out.Result, nil
}

// Authorize charges an enrolled card, split across req.Stores.
func (m *OneClickMall) Authorize(ctx context.Context, req *MallAuthorizeRequest) (*MallAuthorizeResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args mallAuthorizeArgs
	args.Input.Username = req.Username
	args.Input.TbkUser = req.TbkUser
	args.Input.BuyOrder = req.BuyOrder
	args.Input.Stores = req.Stores

	out := &MallAuthorizeResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "authorize", args, out); err != nil {
		return nil, err
	}
	for i := range out.Stores {
		out.Stores[i].ResponseCodeMessage = ResponseCodeMessage(out.Stores[i].ResponseCode)
	}
	return out, nil
}

// Reverse reverses every store payment of the mall purchase buyOrder.
func (m *OneClickMall) Reverse(ctx context.Context, buyOrder string) (*MallReverseResult, error) {
	if strings.TrimSpace(buyOrder) == "" {
		return nil, ErrMissingParams
	}
	var args mallReverseArgs
	args.Input.BuyOrder = buyOrder

	out := &MallReverseResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "reverse", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Nullify cancels all or part of one store's sub-transaction.
func (m *OneClickMall) Nullify(ctx context.Context, req *MallNullifyRequest) (*MallNullifyResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args mallNullifyArgs
	args.Input.CommerceID = req.CommerceID
	args.Input.BuyOrder = req.BuyOrder
	args.Input.AuthorizedAmount = req.AuthorizedAmount
	args.Input.AuthorizationCode = req.AuthorizationCode
	args.Input.NullifyAmount = req.NullifyAmount

	out := &MallNullifyResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "nullify", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReverseNullification reverses a nullification.
func (m *OneClickMall) ReverseNullification(ctx context.Context, req *ReverseNullificationRequest) (*ReverseResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args mallReverseNullificationArgs
	args.Input.BuyOrder = req.BuyOrder
	args.Input.CommerceID = req.CommerceID
	args.Input.NullifyAmount = req.NullifyAmount

	out := &ReverseResult{}
	if err := m.client.call(ctx, EndpointOneClickMall, "reverseNullification", args, out); err != nil {
		return nil, err
	}
	return out, nil
}
