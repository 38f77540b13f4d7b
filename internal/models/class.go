package models

// ClassSubjectPair names one (class, subject) combination an assessment can target.
type ClassSubjectPair struct {
	ClassID     string `db:"class_id" json:"class_id"`
	SubjectID   string `db:"subject_id" json:"subject_id"`
	ClassName   string `db:"class_name" json:"class_name,omitempty"`
	SubjectName string `db:"subject_name" json:"subject_name,omitempty"`
}

// Key identifies the pair independent of display names.
func (p ClassSubjectPair) Key() string {
	return p.ClassID + ":" + p.SubjectID
}

// Label renders "Class - Subject".
func (p ClassSubjectPair) Label() string {
	return p.ClassName + " - " + p.SubjectName
}

// SamePairs reports whether a and b hold the same set of pairs, ignoring order
// and duplicates.
func SamePairs(a, b []ClassSubjectPair) bool {
	left := make(map[string]struct{}, len(a))
	for _, p := range a {
		left[p.Key()] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, p := range b {
		right[p.Key()] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for k := range left {
		if _, ok := right[k]; !ok {
			return false
		}
	}
	return true
}
