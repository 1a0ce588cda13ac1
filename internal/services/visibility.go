package services

// IsVisible decides whether q is shown given the answers so far. A question
// without a rule is always visible. A question whose dependency has not been
// answered yet is hidden, whatever the operator.
func IsVisible(q *Question, current ResponseSet) bool {
	rule := q.Conditional
	if rule == nil {
		return true
	}
	dep, ok := current[rule.Question]
	if !ok || !answered(dep) {
		return false
	}
	switch {
	case rule.Equals != nil:
		return answerMatches(dep, rule.Equals)
	case rule.NotEquals != nil:
		return !answerMatches(dep, rule.NotEquals)
	case rule.Contains != nil:
		want, ok := rule.Contains.(string)
		if !ok || dep.Selected == nil {
			return false
		}
		return containsString(dep.Selected, want)
	}
	return true
}

// answerMatches compares the scalar part of an answer with want. List answers
// match when they include want. Criteria answers never match.
func answerMatches(a Answer, want any) bool {
	switch {
	case a.Value != nil:
		return valuesEqual(a.Value, want)
	case a.Text != nil:
		return valuesEqual(*a.Text, want)
	case a.Winner != "":
		return valuesEqual(a.Winner, want)
	case a.Selected != nil:
		s, ok := want.(string)
		return ok && containsString(a.Selected, s)
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// VisibleQuestions filters the schema down to what a rater sees now.
func VisibleQuestions(schema MultiQuestionSchema, current ResponseSet) []*Question {
	out := make([]*Question, 0, len(schema.Questions))
	for _, q := range schema.Questions {
		if IsVisible(q, current) {
			out = append(out, q)
		}
	}
	return out
}
