package exercises

// Exercise is reference data: the catalogue of known exercises,
// each carrying the XP awarded for completing it in a plan.
type Exercise struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	DifficultyXP int    `json:"difficultyXP"`
}
