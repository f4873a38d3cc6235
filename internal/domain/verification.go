package domain

// IdentityDocument is the identity document supplied once, out-of-band,
// before a session starts.
type IdentityDocument struct {
	Name string
	Data []byte
}

// Portrait is the captured frame sent for verification. The wire filename is
// fixed regardless of origin.
type Portrait struct {
	Name string
	Data []byte
}

const PortraitFileName = "portrait.jpg"

func NewPortrait(frame []byte) Portrait {
	return Portrait{Name: PortraitFileName, Data: frame}
}

// VerificationRequest pairs the document and the captured portrait for a
// single verification call. Built immediately before the call, never retried
// automatically.
type VerificationRequest struct {
	Document IdentityDocument
	Portrait Portrait
}

// VerificationResult is the structured outcome returned by the verification
// endpoint. Immutable once received; the last result wins.
type VerificationResult struct {
	Verification Verdict        `json:"verification"`
	Person       Person         `json:"person"`
	Document     DocumentRecord `json:"document"`
}

type Verdict struct {
	Legit     bool   `json:"legit"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Person fields come back as "N/A" when extraction failed.
type Person struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"gender"`
}

type DocumentRecord struct {
	ExpirationDate string `json:"expiration_date"`
}
