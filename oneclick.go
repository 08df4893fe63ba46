package webpay

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// OneClick enrolls cards and charges enrolled cards without the
// cardholder re-entering them.
type OneClick struct {
	client *Client
}

// InscriptionRequest starts a one-click enrollment.
type InscriptionRequest struct {
	Username string
	Email    string
	// ResponseURL receives the cardholder, with TBK_TOKEN, when the
	// enrollment form is done.
	ResponseURL string
}

// InscriptionResult holds the token and the enrollment form URL.
type InscriptionResult struct {
	Token     string `xml:"token"`
	URLWebpay string `xml:"urlWebpay"`
}

// FinishInscriptionResult is the outcome of an enrollment.
type FinishInscriptionResult struct {
	ResponseCode    string `xml:"responseCode"`
	AuthCode        string `xml:"authCode"`
	CreditCardType  string `xml:"creditCardType"`
	Last4CardDigits string `xml:"last4CardDigits"`
	// TbkUser identifies the enrollment in later payments.
	TbkUser string `xml:"tbkUser"`
}

// RemoveUserRequest deletes an enrollment.
type RemoveUserRequest struct {
	TbkUser  string
	Username string
}

// AuthorizeRequest charges an enrolled card.
type AuthorizeRequest struct {
	Amount   decimal.Decimal
	TbkUser  string
	Username string
	BuyOrder string
}

// AuthorizeResult is the outcome of a one-click payment.
type AuthorizeResult struct {
	ResponseCode    string `xml:"responseCode"`
	AuthCode        string `xml:"authCode"`
	CreditCardType  string `xml:"creditCardType"`
	Last4CardDigits string `xml:"last4CardDigits"`
	TransactionID   string `xml:"transactionId"`
	// ResponseCodeMessage is the Spanish description of ResponseCode.
	ResponseCodeMessage string `xml:"-"`
}

// ReverseResult is the outcome of a payment reversal.
type ReverseResult struct {
	ReverseCode string `xml:"reverseCode"`
	Reversed    bool   `xml:"reversed"`
}

type oneClickInscriptionArgs struct {
	Input struct {
		Username    string `xml:"username"`
		Email       string `xml:"email"`
		ResponseURL string `xml:"responseURL"`
	} `xml:"arg0"`
}

type oneClickTokenArgs struct {
	Input struct {
		Token string `xml:"token"`
	} `xml:"arg0"`
}

type oneClickRemoveArgs struct {
	Input struct {
		TbkUser  string `xml:"tbkUser"`
		Username string `xml:"username"`
	} `xml:"arg0"`
}

type oneClickAuthorizeArgs struct {
	Input struct {
		Amount   decimal.Decimal `xml:"amount"`
		TbkUser  string          `xml:"tbkUser"`
		Username string          `xml:"username"`
		BuyOrder string          `xml:"buyOrder"`
	} `xml:"arg0"`
}

type oneClickReverseArgs struct {
	Input struct {
		BuyOrder string `xml:"buyorder"`
	} `xml:"arg0"`
}

type boolReturn struct {
	Value bool `xml:",chardata"`
}

// InitInscription starts enrolling a card for username.
func (o *OneClick) InitInscription(ctx context.Context, req *InscriptionRequest) (*InscriptionResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args oneClickInscriptionArgs
	args.Input.Username = req.Username
	args.Input.Email = req.Email
	args.Input.ResponseURL = req.ResponseURL

	out := &InscriptionResult{}
	if err := o.client.call(ctx, EndpointOneClick, "initInscription", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// FinishInscription completes the enrollment identified by the TBK_TOKEN
// posted to the response URL.
func (o *OneClick) FinishInscription(ctx context.Context, token string) (*FinishInscriptionResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingParams
	}
	var args oneClickTokenArgs
	args.Input.Token = token

	out := &FinishInscriptionResult{}
	if err := o.client.call(ctx, EndpointOneClick, "finishInscription", args, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveUser deletes an enrollment. It reports whether Webpay removed it.
func (o *OneClick) RemoveUser(ctx context.Context, req *RemoveUserRequest) (bool, error) {
	if req == nil {
		return false, ErrMissingParams
	}
	var args oneClickRemoveArgs
	args.Input.TbkUser = req.TbkUser
	args.Input.Username = req.Username

	out := &boolReturn{}
	if err := o.client.call(ctx, EndpointOneClick, "removeUser", args, out); err != nil {
		return false, err
	}
	return out.Value, nil
}

// Authorize charges an enrolled card. BuyOrder must be unique per
// merchant.
func (o *OneClick) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	if req == nil {
		return nil, ErrMissingParams
	}
	var args oneClickAuthorizeArgs
	args.Input.Amount = req.Amount
	args.Input.TbkUser = req.TbkUser
	args.Input.Username = req.Username
	args.Input.BuyOrder = req.BuyOrder

	out := &AuthorizeResult{}
	if err := o.client.call(ctx, EndpointOneClick, "authorize", args, out); err != nil {
		return nil, err
	}
	out.ResponseCodeMessage = ResponseCodeMessage(out.ResponseCode)
	return out, nil
}

// CodeReverseOneClick reverses the payment made with buyOrder.
func (o *OneClick) CodeReverseOneClick(ctx context.Context, buyOrder string) (*ReverseResult, error) {
	if strings.TrimSpace(buyOrder) == "" {
		return nil, ErrMissingParams
	}
	var args oneClickReverseArgs
	args.Input.BuyOrder = buyOrder

	out := &ReverseResult{}
	if err := o.client.call(ctx, EndpointOneClick, "codeReverseOneClick", args, out); err != nil {
		return nil, err
	}
	return out, nil
}
