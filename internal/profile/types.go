package profile

// Profile is the sender's side of every outreach email: who is writing, what
// they offer and how they want to come across.
type Profile struct {
	Sender   SenderProfile   `json:"sender" yaml:"sender"`
	Offer    OfferProfile    `json:"offer" yaml:"offer"`
	Outreach OutreachProfile `json:"outreach" yaml:"outreach"`
	Targets  TargetProfile   `json:"targets" yaml:"targets"`
}

// SenderProfile identifies the person sending.
type SenderProfile struct {
	Name    string `json:"name,omitempty" yaml:"name"`
	Title   string `json:"title,omitempty" yaml:"title"`
	Company string `json:"company,omitempty" yaml:"company"`
	Email   string `json:"email,omitempty" yaml:"email"`
}

// OfferProfile describes what is being sold.
type OfferProfile struct {
	ValueProposition string   `json:"value_proposition,omitempty" yaml:"value_proposition"`
	Products         []string `json:"products,omitempty" yaml:"products"`
	CaseStudies      []string `json:"case_studies,omitempty" yaml:"case_studies"`
}

// OutreachProfile holds tone and booking preferences.
type OutreachProfile struct {
	Approach       string `json:"approach,omitempty" yaml:"approach"` // e.g. "friendly, concise"
	SchedulingLink string `json:"scheduling_link,omitempty" yaml:"scheduling_link"`
	Signature      string `json:"signature,omitempty" yaml:"signature"`
}

// TargetProfile is the ideal customer profile.
type TargetProfile struct {
	Industries []string `json:"industries,omitempty" yaml:"industries"`
	Titles     []string `json:"titles,omitempty" yaml:"titles"`
}
