package session

import (
	"errors"

	"zapkit/internal/amm"
	"zapkit/internal/approval"
)

// Button is the copy and enablement of one action.
type Button struct {
	Text    string
	Enabled bool
	Busy    bool
}

// View is what the zap page renders for a session.
type View struct {
	// Approve is shown only during the two-step approve flow.
	Approve *Button
	Zap     Button
	// Stake is shown once the zap finished.
	Stake *Button
	// Steps reports approval progress while the approve flow is shown.
	Steps    []bool
	Severity amm.Severity
}

// View derives the buttons for s.
func (s Session) View() View {
	var v View
	if s.Quote != nil {
		v.Severity = s.Quote.Severity
	}

	state := s.Zap.Approval
	submitted := s.Zap.ApprovalSubmitted
	showApproveFlow := s.Quote != nil && approval.ShowApproveFlow(state, submitted, s.InputError)

	switch {
	case s.Parsed != nil && errors.Is(s.InputError, amm.ErrNoRoute):
		v.Zap = Button{Text: "Insufficient liquidity for this trade."}
	case showApproveFlow:
		approve := Button{Text: "Approve " + s.Quote.Input.Token.Display()}
		switch {
		case state == approval.Pending:
			approve = Button{Text: "Approving", Busy: true}
		case submitted && state == approval.Approved:
			approve.Text = "Approved"
		default:
			approve.Enabled = state == approval.NotApproved && !submitted
		}
		v.Approve = &approve
		v.Zap = Button{Text: "Zap", Enabled: state == approval.Approved && s.Zap.State == Approved}
		v.Steps = []bool{state == approval.Approved}
	case s.InputError == nil && v.Severity >= amm.SeverityMedium:
		text := "Swap"
		if v.Severity >= amm.SeverityHigh {
			text = "Swap Anyway"
		}
		if v.Severity.Blocking() {
			text = "Price Impact Too High"
		}
		v.Zap = Button{Text: text, Enabled: !v.Severity.Blocking() && s.Zap.State == Approved}
	default:
		text := "Zap"
		if s.InputError != nil {
			text = errorText(s)
		}
		v.Zap = Button{Text: text, Enabled: s.Parsed != nil && s.InputError == nil && s.Zap.State == Approved}
	}

	if s.Zap.State == Submitting {
		v.Zap.Busy = true
		v.Zap.Enabled = false
	}

	if s.Zap.State == Finished {
		busy := s.Stake.State.Busy()
		v.Stake = &Button{Text: "Sign and Stake", Enabled: !busy && s.Stake.State != Finished, Busy: busy}
	}
	return v
}

func errorText(s Session) string {
	switch {
	case errors.Is(s.InputError, ErrNoPool):
		return "Select a pool"
	case errors.Is(s.InputError, ErrNoCurrency):
		return "Select a token"
	case errors.Is(s.InputError, ErrInvalidAmount):
		return "Enter an amount"
	case errors.Is(s.InputError, ErrInsufficientBalance):
		if s.Currency != nil {
			return "Insufficient " + s.Currency.Display() + " balance"
		}
		return "Insufficient balance"
	default:
		return s.InputError.Error()
	}
}
