package wizard

// Event is an input to Reduce. The concrete types below are the only events.
type Event interface{ event() }

type (
	// EditField changes one account field.
	EditField struct {
		Field Field
		Value string
	}
	// AccountCreated is emitted by the registration pipeline once the
	// identity provider accepted the account. It is the wizard's only commit
	// point.
	AccountCreated struct{ UserID string }
	// SelectTier picks one of the offered tiers.
	SelectTier struct {
		TierID  string
		Offered []string
	}
	// Continue advances one step. On the account step it only applies once
	// the account exists.
	Continue struct{}
	// Back moves one step backwards. It is always allowed.
	Back struct{}
	// Restore adopts the step found in the request URL.
	Restore struct{ Step Step }
	// AttachAvatar replaces the pending avatar.
	AttachAvatar struct{ Ref AvatarRef }
	// RemoveAvatar drops the pending avatar.
	RemoveAvatar struct{}
	// Complete is the terminal action on the services step.
	Complete struct{ Gate Gate }
	// Reset discards the session, as on a fresh entry.
	Reset struct{}
)

func (EditField) event()      {}
func (AccountCreated) event() {}
func (SelectTier) event()     {}
func (Continue) event()       {}
func (Back) event()           {}
func (Restore) event()        {}
func (AttachAvatar) event()   {}
func (RemoveAvatar) event()   {}
func (Complete) event()       {}
func (Reset) event()          {}

// Reduce is the wizard's transition function. On error it returns s
// unchanged, so callers can keep rendering the returned state either way.
func Reduce(s State, e Event) (State, error) {
	next := s
	switch ev := e.(type) {
	case EditField:
		if s.Step != StepAccount || s.Registered() {
			return s, ErrWrongStep
		}
		switch ev.Field {
		case FieldEmail:
			next.Form.Email = ev.Value
		case FieldDisplayName:
			next.Form.DisplayName = ev.Value
		case FieldPassword:
			next.Form.Password = ev.Value
		case FieldConfirmPassword:
			next.Form.ConfirmPassword = ev.Value
		default:
			return s, ErrMissingField
		}

	case AccountCreated:
		if s.Step != StepAccount {
			return s, ErrWrongStep
		}
		if err := ValidateAccount(s.Form); err != nil {
			return s, err
		}
		if ev.UserID == "" {
			return s, ErrNotRegistered
		}
		next.UserID = ev.UserID
		next.Form.Password = ""
		next.Form.ConfirmPassword = ""
		next.Form.Avatar = nil
		next.Step = StepSubscription

	case SelectTier:
		if s.Step != StepSubscription {
			return s, ErrWrongStep
		}
		if ev.TierID == "" {
			return s, ErrTierRequired
		}
		if !contains(ev.Offered, ev.TierID) {
			return s, ErrUnknownTier
		}
		next.SelectedTierID = ev.TierID

	case Continue:
		switch {
		case s.Step == StepAccount && s.Registered():
			next.Step = StepSubscription
		case s.Step == StepSubscription:
			if s.SelectedTierID == "" {
				return s, ErrTierRequired
			}
			next.Step = StepServices
		default:
			return s, ErrWrongStep
		}

	case Back:
		prev, _ := s.Step.Prev()
		next.Step = prev

	case Restore:
		if ev.Step != StepAccount && !s.Registered() {
			return s, ErrNotRegistered
		}
		if ev.Step == StepServices && s.SelectedTierID == "" {
			return s, ErrTierRequired
		}
		next.Step = ev.Step

	case AttachAvatar:
		if s.Step != StepAccount || s.Registered() {
			return s, ErrWrongStep
		}
		ref := ev.Ref
		next.Form.Avatar = &ref

	case RemoveAvatar:
		next.Form.Avatar = nil

	case Complete:
		if s.Step != StepServices {
			return s, ErrWrongStep
		}
		if !ev.Gate.Enabled() {
			return s, ErrCompletionBlocked
		}
		next.Completed = true

	case Reset:
		next = New()

	default:
		return s, ErrWrongStep
	}
	return next, nil
}

// ReleasedAvatar returns the avatar that was pending in prev and is no longer
// referenced by next, or nil. Callers free its preview.
func ReleasedAvatar(prev, next State) *AvatarRef {
	if prev.Form.Avatar == nil {
		return nil
	}
	if next.Form.Avatar != nil && next.Form.Avatar.Token == prev.Form.Avatar.Token {
		return nil
	}
	return prev.Form.Avatar
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
