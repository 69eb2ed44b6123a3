package core

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Action represents a data-access operation on a resource, one of Create, Read, Update, Delete, List
type Action string

// all supported resource actions
const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Action(s)
	switch *a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionList:
		return nil
	default:
		return fmt.Errorf("%s is not a valid Action", s)
	}
}
