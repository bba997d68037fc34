package types

// PushNotificationAuthentication describes how the webhook receiver expects
// to be authenticated.
type PushNotificationAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}

// HasScheme reports whether the receiver accepts the given scheme (case-sensitive).
func (a *PushNotificationAuthentication) HasScheme(scheme string) bool {
	if a == nil {
		return false
	}
	for _, s := range a.Schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// PushNotificationConfig is a webhook registered for a task.
type PushNotificationConfig struct {
	ID             string                          `json:"id,omitempty"`
	URL            string                          `json:"url"`
	Token          string                          `json:"token,omitempty"`
	Authentication *PushNotificationAuthentication `json:"authentication,omitempty"`
}

// Clone returns a deep copy. Nil stays nil.
func (c *PushNotificationConfig) Clone() *PushNotificationConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Authentication != nil {
		auth := *c.Authentication
		auth.Schemes = append([]string(nil), c.Authentication.Schemes...)
		out.Authentication = &auth
	}
	return &out
}
