package httpx

// MaskToken masks a bearer token for safe logging (first 4 and last 4 chars).
// Session credentials must never appear in plain text in logs or audit rows.
func MaskToken(token string) string {
	if token == "" {
		return "(empty)"
	}
	if len(token) < 12 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
