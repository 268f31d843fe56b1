package models

// These describe the state of the QBE form. The admin layer stores and
// hashes them but never turns them into SQL.

type SortDirection string

const (
	SortNone       SortDirection = ""
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

type CriteriaOperator string

const (
	OperatorExact       CriteriaOperator = "exact"
	OperatorIExact      CriteriaOperator = "iexact"
	OperatorContains    CriteriaOperator = "contains"
	OperatorIContains   CriteriaOperator = "icontains"
	OperatorRegex       CriteriaOperator = "regex"
	OperatorGreaterThan CriteriaOperator = "gt"
	OperatorGreaterOrEq CriteriaOperator = "gte"
	OperatorLessThan    CriteriaOperator = "lt"
	OperatorLessOrEq    CriteriaOperator = "lte"
	OperatorStartsWith  CriteriaOperator = "startswith"
	OperatorEndsWith    CriteriaOperator = "endswith"
	OperatorIsNull      CriteriaOperator = "isnull"
	OperatorJoin        CriteriaOperator = "join"
)

var validOperators = map[CriteriaOperator]bool{
	OperatorExact: true, OperatorIExact: true, OperatorContains: true,
	OperatorIContains: true, OperatorRegex: true, OperatorGreaterThan: true,
	OperatorGreaterOrEq: true, OperatorLessThan: true, OperatorLessOrEq: true,
	OperatorStartsWith: true, OperatorEndsWith: true, OperatorIsNull: true,
	OperatorJoin: true,
}

// Criteria restricts a row; for OperatorJoin the value names the other model.field
type Criteria struct {
	Operator CriteriaOperator `json:"operator"`
	Value    string           `json:"value,omitempty"`
}

// QueryRow is one line of the QBE grid
type QueryRow struct {
	Model    string        `json:"model"`
	Field    string        `json:"field"`
	Show     bool          `json:"show"`
	Sort     SortDirection `json:"sort,omitempty"`
	Criteria *Criteria     `json:"criteria,omitempty"`
}

// QueryDefinition is the opaque query_data of a saved or pending query.
// Field order is fixed so that encoding is deterministic.
type QueryDefinition struct {
	Rows     []QueryRow `json:"rows"`
	Database string     `json:"database,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

func (c Criteria) IsValid() bool {
	if !validOperators[c.Operator] {
		return false
	}
	switch c.Operator {
	case OperatorIsNull:
		return true
	default:
		return c.Value != ""
	}
}

func (r QueryRow) IsValid() bool {
	if r.Model == "" || r.Field == "" {
		return false
	}
	switch r.Sort {
	case SortNone, SortAscending, SortDescending:
	default:
		return false
	}
	return r.Criteria == nil || r.Criteria.IsValid()
}

func (d QueryDefinition) IsValid() bool {
	if len(d.Rows) == 0 || d.Limit < 0 || d.Offset < 0 {
		return false
	}
	for _, row := range d.Rows {
		if !row.IsValid() {
			return false
		}
	}
	return true
}
