package service

// AliasTableVersion identifies the revision of DefaultAliases. Bump it whenever
// an alias is added, removed or reordered.
const AliasTableVersion = "2026.1"

// AliasTable lists, per canonical field, the accepted normalized source headers
// in priority order. The first present non-empty header wins for scalar fields;
// list fields concatenate every match.
type AliasTable struct {
	Version     string
	ID          []string
	Name        []string
	FirstName   []string
	LastName    []string
	Age         []string
	BirthDate   []string
	Gender      []string
	Diagnosis   []string
	Conditions  []string
	Medications []string
	Location    []string
	City        []string
	State       []string
	Insurance   []string

	Severity  []string
	Stage     []string
	ECOG      []string
	NYHA      []string
	HbA1c     []string
	EGFR      []string
	BMI       []string
	Smoking   []string
	Adherence []string
}

// DefaultAliases is the alias table used when none is supplied.
var DefaultAliases = AliasTable{
	Version:     AliasTableVersion,
	ID:          []string{"id", "patient_id", "patientid", "mrn", "medical_record_number"},
	Name:        []string{"name", "patient_name", "full_name"},
	FirstName:   []string{"first_name", "firstname", "given_name"},
	LastName:    []string{"last_name", "lastname", "surname", "family_name"},
	Age:         []string{"age", "patient_age", "age_years"},
	BirthDate:   []string{"dob", "date_of_birth", "birth_date", "birthdate"},
	Gender:      []string{"gender", "sex"},
	Diagnosis:   []string{"primary_diagnosis", "diagnosis", "primary_condition", "condition", "disease", "medical_condition"},
	Conditions:  []string{"conditions", "comorbidities", "secondary_conditions", "medical_history", "other_conditions"},
	Medications: []string{"medications", "current_medications", "meds", "medication"},
	Location:    []string{"location", "address", "city_state"},
	City:        []string{"city"},
	State:       []string{"state", "state_code"},
	Insurance:   []string{"insurance", "insurance_provider", "payer", "insurance_type"},

	Severity:  []string{"condition_severity", "severity", "disease_severity"},
	Stage:     []string{"disease_stage", "stage", "cancer_stage", "tumor_stage"},
	ECOG:      []string{"ecog", "ecog_score", "ecog_status", "performance_status"},
	NYHA:      []string{"nyha", "nyha_class", "heart_failure_class"},
	HbA1c:     []string{"hba1c", "a1c", "hemoglobin_a1c"},
	EGFR:      []string{"egfr", "gfr", "kidney_function"},
	BMI:       []string{"bmi", "body_mass_index"},
	Smoking:   []string{"smoking", "smoking_status", "tobacco_use", "smoker"},
	Adherence: []string{"adherence", "medication_adherence", "compliance"},
}
