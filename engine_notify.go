package idpcore

import (
	"context"
	"net/url"
	"strings"

	"github.com/MrEthical07/idpcore/internal/flows"
)

// SendInitialPassword issues a long-lived reset token for username and
// mails the initial-password link. A 5xx delivery failure is retried once;
// a failed retry returns *DeliveryError.
func (e *Engine) SendInitialPassword(ctx context.Context, username string) (Token, error) {
	if e == nil || !e.flows.Initialized() {
		return Token{}, ErrEngineNotReady
	}
	acct, err := e.accounts.FindByUsername(ctx, strings.ToUpper(strings.TrimSpace(username)), true)
	if err != nil {
		return Token{}, err
	}
	if acct.Email == "" {
		return Token{}, ErrNoRecipient
	}

	token, err := e.createToken(ctx, TokenReset, acct.Username, e.config.Token.InitialPasswordTTL)
	if err != nil {
		return Token{}, err
	}

	err = e.flows.Notify(ctx, notifyRequest(e.config.Notify.InitialPasswordTemplate, acct.Email, acct.Username, map[string]string{
		"firstName": acct.FirstName,
		"username":  acct.Username,
		"resetLink": resetLink(e.config.Notify.InitialPasswordURL, token.Value),
	}))
	if err != nil {
		return Token{}, err
	}
	return token, nil
}

func notifyRequest(templateID, recipient, username string, params map[string]string) flows.NotifyRequest {
	return flows.NotifyRequest{
		TemplateID: templateID,
		Recipient:  recipient,
		Username:   username,
		Params:     params,
	}
}

func resetLink(base, token string) string {
	if base == "" {
		return token
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}
