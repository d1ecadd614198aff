package models

// VerifyEmailJob is the payload published on the verify-email queue.
type VerifyEmailJob struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	VerifyEmailURL string `json:"verifyEmailUrl"`
}

// Fields exposes the job as a lookup table keyed by the JSON field names,
// which are the keys placeholder metadata refers to.
func (j VerifyEmailJob) Fields() map[string]string {
	return map[string]string{
		"email":          j.Email,
		"username":       j.Username,
		"verifyEmailUrl": j.VerifyEmailURL,
	}
}
