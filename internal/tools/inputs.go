package tools

// Input structs for every skill. The validate tags are the argument
// contract: closed enumerations use oneof, numeric ranges use gte/lte, and
// anything the executor cannot proceed without is required.

type CropGuidanceInput struct {
	Crop     string `json:"crop" validate:"required"`
	Stage    string `json:"stage,omitempty"`
	Question string `json:"question" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type BuyerMatchInput struct {
	Produce    string  `json:"produce" validate:"required"`
	QuantityKg float64 `json:"quantity_kg,omitempty" validate:"gte=0"`
	District   string  `json:"district,omitempty"`
	State      string  `json:"state,omitempty"`
}

type DiseaseInput struct {
	Crop     string `json:"crop" validate:"required"`
	Symptoms string `json:"symptoms" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type SchemeInput struct {
	Income   string `json:"income" validate:"required"`
	LandSize string `json:"land_size" validate:"required"`
	Crop     string `json:"crop,omitempty"`
	State    string `json:"state" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type SoilInput struct {
	Description string `json:"description" validate:"required"`
	District    string `json:"district,omitempty"`
	Crop        string `json:"crop,omitempty"`
	Language    string `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type YieldInput struct {
	Crop       string  `json:"crop" validate:"required"`
	SowingDate string  `json:"sowing_date" validate:"required,datetime=2006-01-02"`
	AreaAcres  float64 `json:"area_acres" validate:"gt=0"`
	District   string  `json:"district,omitempty"`
	Language   string  `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type WeatherInput struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
	Language  string  `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}

type CalendarInput struct {
	Crop        string `json:"crop" validate:"required"`
	Region      string `json:"region,omitempty"`
	SowingMonth string `json:"sowing_month,omitempty"`
	Language    string `json:"language,omitempty" validate:"omitempty,oneof=en hi mr"`
}
