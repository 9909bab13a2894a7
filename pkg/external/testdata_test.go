package external

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// studyJSON builds one registry study document.
func studyJSON(t *testing.T, nctID, title, condition string) map[string]any {
	t.Helper()
	return map[string]any{
		"protocolSection": map[string]any{
			"identificationModule": map[string]any{"nctId": nctID, "briefTitle": title},
			"statusModule": map[string]any{
				"overallStatus":            "RECRUITING",
				"lastUpdatePostDateStruct": map[string]any{"date": "2026-03-01"},
			},
			"designModule":               map[string]any{"phases": []string{"PHASE2", "PHASE3"}},
			"sponsorCollaboratorsModule": map[string]any{"leadSponsor": map[string]any{"name": "Acme Oncology"}},
			"conditionsModule":           map[string]any{"conditions": []string{condition}},
			"contactsLocationsModule": map[string]any{
				"centralContacts": []map[string]any{{"name": "Study Desk", "phone": "555-0100", "email": "desk@example.org"}},
				"locations": []map[string]any{
					{"facility": "General Hospital", "city": "Austin", "state": "Texas"},
					{"city": "Boston", "state": "Massachusetts"},
					{"facility": "Lakeside Clinic", "city": "Chicago", "state": "Illinois"},
					{"facility": "Bay Center", "city": "San Francisco", "state": "California"},
				},
			},
			"eligibilityModule": map[string]any{"eligibilityCriteria": "Adults 18 years and older"},
		},
	}
}

func studiesBody(t *testing.T, studies ...map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{"studies": studies, "totalCount": len(studies)})
	if err != nil {
		t.Fatalf("marshal studies: %v", err)
	}
	return body
}

func nct(i int) string {
	return fmt.Sprintf("NCT%08d", i)
}
