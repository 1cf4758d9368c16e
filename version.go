package codelists

// Version is the release of the codelists module.
const Version = "0.4.0"

// UserAgent returns the User-Agent sent when fetching source documents.
func UserAgent() string {
	return "gofhir-codelists/" + Version
}
