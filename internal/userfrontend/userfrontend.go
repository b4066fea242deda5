// Package userfrontend implements the user front-end contract: an
// operator-facing control surface that submits Command messages and
// receives error notifications, plus a WebSocket + Mattermost reference
// implementation.
package userfrontend

import "github.com/mindmusiclabs/sensei/internal/message"

// UserFrontend is notified of errors the event handler decides are worth
// surfacing to an operator: command-application failures and hardware
// errors at warning severity or above.
type UserFrontend interface {
	NotifyError(e message.Error)
}
