package metaexpand

import (
	"github.com/galaxyproject/galaxy-params/internal/params"
)

// JobError holds the field errors of one expanded run.
type JobError struct {
	Index  int                    `json:"index"`
	Errors map[string]interface{} `json:"errors"`
}

// Expansion is a batch request checked run by run.
type Expansion struct {
	// Params holds the persisted string form of every valid run, in
	// expansion order.
	Params      []map[string]string
	Errors      []JobError
	Collections *MatchingCollections
}

// ExpandJobs expands incoming, populates every run against the tool inputs
// and converts valid runs to their string form. Nested requests keep their
// shape through the expansion.
func ExpandJobs(trans *params.Trans, tool *params.Tool, incoming map[string]interface{}, format params.InputFormat) (*Expansion, error) {
	expand := ExpandMetaParameters
	if format == params.FormatNested {
		expand = ExpandNestedMetaParameters
	}
	expanded, matching, err := expand(trans, tool, incoming)
	if err != nil {
		return nil, err
	}
	out := &Expansion{Collections: matching}
	for i, run := range expanded {
		populated := map[string]interface{}{}
		fieldErrors := map[string]interface{}{}
		opts := params.PopulateOptions{Format: format}
		if err := params.PopulateState(trans, tool.Inputs, run, populated, fieldErrors, opts); err != nil {
			return nil, err
		}
		if len(fieldErrors) > 0 {
			out.Errors = append(out.Errors, JobError{Index: i, Errors: fieldErrors})
			continue
		}
		strs, err := params.ParamsToStrings(tool.Inputs, populated, trans.App, true)
		if err != nil {
			return nil, err
		}
		out.Params = append(out.Params, strs)
	}
	return out, nil
}
