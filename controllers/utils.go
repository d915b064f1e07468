package controllers

func stringPtr(s string) *string {
	return &s
}
