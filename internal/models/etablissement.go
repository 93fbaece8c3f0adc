package models

// Etablissement is one entry of the structured establishment directory
// maintained by the back office. The sync job flattens these into text
// knowledge sources; full CRUD on the directory lives outside this service.
type Etablissement struct {
	ID          string   `firestore:"-" json:"id"`
	Nom         string   `firestore:"nom" json:"nom"`
	Type        string   `firestore:"type" json:"type"`
	Ville       string   `firestore:"ville" json:"ville"`
	Adresse     string   `firestore:"adresse,omitempty" json:"adresse,omitempty"`
	Telephone   string   `firestore:"telephone,omitempty" json:"telephone,omitempty"`
	Email       string   `firestore:"email,omitempty" json:"email,omitempty"`
	SiteWeb     string   `firestore:"siteWeb,omitempty" json:"siteWeb,omitempty"`
	Description string   `firestore:"description,omitempty" json:"description,omitempty"`
	Formations  []string `firestore:"formations,omitempty" json:"formations,omitempty"`
}
