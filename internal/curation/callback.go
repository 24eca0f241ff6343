package curation

import (
	"regexp"
	"strconv"
	"strings"

	errs "spots-pipeline/pkg/errors"
)

// Action is the tagged variant for an admin callback.
type Action int

const (
	ActionApprove Action = iota
	ActionDeny
	ActionActivityAdd
	ActionActivityDeny
	ActionReportExclude
	ActionReportKeep
	ActionEditApprove
	ActionEditDeny
	ActionDeleteApprove
	ActionDeleteDeny
)

var actionNames = map[Action]string{
	ActionApprove:       "approve",
	ActionDeny:          "deny",
	ActionActivityAdd:   "actadd",
	ActionActivityDeny:  "actdeny",
	ActionReportExclude: "rptexcl",
	ActionReportKeep:    "rptkeep",
	ActionEditApprove:   "edtappr",
	ActionEditDeny:      "edtdeny",
	ActionDeleteApprove: "delappr",
	ActionDeleteDeny:    "deldeny",
}

func (a Action) String() string { return actionNames[a] }

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, len(actionNames))
	for a, n := range actionNames {
		m[n] = a
	}
	return m
}()

// Event is a parsed admin callback: the action plus either a spot id or a
// sanitized activity name.
type Event struct {
	Action       Action
	SpotID       int64  // for spot-targeted actions
	ActivityName string // for actadd/actdeny
	Actor        string
}

// activityNameRe keeps proposed activity names to a safe shape.
var activityNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9 &'-]{1,40}$`)

// ParseCallback decodes an opaque "<action>_<id>" payload. The action tag
// never contains an underscore, so the first one splits the payload.
func ParseCallback(payload, actor string) (*Event, error) {
	idx := strings.Index(payload, "_")
	if idx <= 0 || idx == len(payload)-1 {
		return nil, errs.NewValidation("curation.ParseCallback", "malformed payload "+payload, nil)
	}
	name, id := payload[:idx], payload[idx+1:]
	action, ok := actionsByName[name]
	if !ok {
		return nil, errs.NewValidation("curation.ParseCallback", "unknown action "+name, nil)
	}
	ev := &Event{Action: action, Actor: actor}
	if ev.Actor == "" {
		ev.Actor = "admin"
	}

	if action == ActionActivityAdd || action == ActionActivityDeny {
		id = strings.TrimSpace(id)
		if !activityNameRe.MatchString(id) {
			return nil, errs.NewValidation("curation.ParseCallback", "invalid activity name "+id, nil)
		}
		ev.ActivityName = id
		return ev, nil
	}

	spotID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || spotID <= 0 {
		return nil, errs.NewValidation("curation.ParseCallback", "invalid spot id "+id, err)
	}
	ev.SpotID = spotID
	return ev, nil
}
