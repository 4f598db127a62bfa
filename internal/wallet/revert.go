package wallet

import (
	"errors"
	"regexp"
	"strings"

	"community-dapp/go-client/internal/apperrors"
)

var revertReasonPattern = regexp.MustCompile(`reverted with the following reason:\s*([^\n]+)`)

const offlineMessage = "Cannot access the blockchain. Are you online?"

// classifyProviderError turns an opaque provider error into the stable error
// taxonomy. A revert reason is extracted and surfaced verbatim, with the
// known duplicate-registration reason mapped to its own code. An execution
// failure without a reason becomes a connectivity timeout. Anything else is
// returned unchanged.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}
	if m := revertReasonPattern.FindStringSubmatch(err.Error()); m != nil {
		reason := strings.TrimSpace(m[1])
		if reason != "" {
			code := apperrors.CodeContractReverted
			if reason == "username already registered" {
				code = apperrors.CodeUsernameRegistered
			}
			return apperrors.Wrap(code, reason, err)
		}
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return apperrors.Wrap(apperrors.CodeTimeout, offlineMessage, err)
	}
	return err
}
