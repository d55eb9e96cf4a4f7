package lifecycle

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type IssueCredentialMessage struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	DurationHours int    `json:"duration_hours"`
	OnResponse    func(cred *ThirdPartyCredential)
}

func (e IssueCredentialMessage) Type() string { return "credential.issue" }

type IssueCredentialHandler struct {
	manager CredentialManager
}

// NewIssueCredentialHandler wires credential issuance to the manager.
func NewIssueCredentialHandler(manager CredentialManager) *IssueCredentialHandler {
	return &IssueCredentialHandler{manager: manager}
}

func (h *IssueCredentialHandler) Execute(ctx context.Context, event IssueCredentialMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during credential issuance",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *IssueCredentialHandler) execute(ctx context.Context, event IssueCredentialMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	cred, err := h.manager.Issue(ctx, event.Username, event.Password, event.DurationHours)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue credential")
	}

	if event.OnResponse != nil {
		event.OnResponse(cred)
	}

	return nil
}
