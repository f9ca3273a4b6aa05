package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/model"
)

func TestSetpointPolicyThresholds(t *testing.T) {
	tests := []struct {
		name    string
		outside float64
		current model.Mode
		want    model.Mode
	}{
		{"well below heating", 30, model.ModeCool, model.ModeHeat},
		{"just below heating", 67.9, model.ModeOff, model.ModeHeat},
		{"at heating setpoint keeps mode", 68, model.ModeOff, model.ModeOff},
		{"inside band keeps heat", 70, model.ModeHeat, model.ModeHeat},
		{"inside band keeps cool", 70, model.ModeCool, model.ModeCool},
		{"at cooling setpoint keeps mode", 72, model.ModeHeat, model.ModeHeat},
		{"just above cooling", 72.1, model.ModeOff, model.ModeCool},
		{"well above cooling", 95, model.ModeHeat, model.ModeCool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, why := SetpointPolicy{}.Decide(ModeInput{OutsideTemp: tt.outside, HeatingSetpoint: 68, CoolingSetpoint: 72, CurrentMode: tt.current})
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, why)
		})
	}
}

func TestSetpointPolicyMonotonic(t *testing.T) {
	in := ModeInput{HeatingSetpoint: 66, CoolingSetpoint: 76, CurrentMode: model.ModeOff}
	for temp := 65.9; temp > 0; temp -= 3.7 {
		in.OutsideTemp = temp
		got, _ := SetpointPolicy{}.Decide(in)
		assert.Equal(t, model.ModeHeat, got, "outside %.1f", temp)
	}
	for temp := 76.1; temp < 130; temp += 3.7 {
		in.OutsideTemp = temp
		got, _ := SetpointPolicy{}.Decide(in)
		assert.Equal(t, model.ModeCool, got, "outside %.1f", temp)
	}
}

func TestHysteresisPolicy(t *testing.T) {
	in := ModeInput{HeatingSetpoint: 68, CoolingSetpoint: 72, Hysteresis: 2, CurrentMode: model.ModeCool}
	// Band is 68-72 around 70.
	for outside, want := range map[float64]model.Mode{67.9: model.ModeHeat, 68: model.ModeCool, 71: model.ModeCool, 72.1: model.ModeCool} {
		in.OutsideTemp = outside
		got, _ := HysteresisPolicy{}.Decide(in)
		assert.Equal(t, want, got, "outside %.1f", outside)
	}

	in.Hysteresis = 5
	in.CurrentMode = model.ModeHeat
	in.OutsideTemp = 74
	got, _ := HysteresisPolicy{}.Decide(in)
	assert.Equal(t, model.ModeHeat, got, "74 is inside the 65-75 band")
}

func TestPolicyByName(t *testing.T) {
	p, err := PolicyByName("hysteresis")
	require.NoError(t, err)
	assert.Equal(t, "hysteresis", p.Name())

	p, err = PolicyByName("")
	require.NoError(t, err)
	assert.Equal(t, "setpoint", p.Name())

	_, err = PolicyByName("fuzzy")
	assert.Error(t, err)
}

func TestDecideTargetMode(t *testing.T) {
	in := ModeInput{OutsideTemp: 40, HeatingSetpoint: 68, CoolingSetpoint: 72, CurrentMode: model.ModeCool}

	d := decideTargetMode(SetpointPolicy{}, in, 0, nil)
	assert.Equal(t, model.ModeOff, d.mode, "no online units forces off")

	d = decideTargetMode(SetpointPolicy{}, in, 2, nil)
	assert.Equal(t, model.ModeHeat, d.mode)
	assert.Equal(t, model.ReasonCoordinatorLogic, d.reason)

	cool := model.ModeCool
	d = decideTargetMode(SetpointPolicy{}, in, 2, &model.Schedule{ID: "summer", Mode: &cool})
	assert.Equal(t, model.ModeCool, d.mode)
	assert.Equal(t, model.ReasonSchedule, d.reason)
	assert.Contains(t, d.reasoning, "summer")

	d = decideTargetMode(SetpointPolicy{}, in, 0, &model.Schedule{ID: "summer", Mode: &cool})
	assert.Equal(t, model.ModeOff, d.mode, "offline beats schedule")
}

func TestDetectConflicts(t *testing.T) {
	unit := func(id string, mode model.Mode, temp float64) model.UnitState {
		return model.UnitState{ID: id, Mode: mode, CurrentTemperature: temp, IsOnline: true}
	}

	tests := []struct {
		name      string
		online    []model.UnitState
		changes   int
		wantKinds []model.ConflictKind
	}{
		{"calm", []model.UnitState{unit("a", model.ModeHeat, 68), unit("b", model.ModeHeat, 70)}, 1, nil},
		{"off units do not mismatch", []model.UnitState{unit("a", model.ModeHeat, 68), unit("b", model.ModeOff, 70)}, 0, nil},
		{"mode mismatch", []model.UnitState{unit("a", model.ModeHeat, 68), unit("b", model.ModeCool, 70), unit("c", model.ModeOff, 69)}, 0, []model.ConflictKind{model.ConflictModeMismatch}},
		{"spread of exactly ten is fine", []model.UnitState{unit("a", model.ModeOff, 60), unit("b", model.ModeOff, 70)}, 0, nil},
		{"spread over ten", []model.UnitState{unit("a", model.ModeOff, 60), unit("b", model.ModeOff, 70.5)}, 0, []model.ConflictKind{model.ConflictTemperatureSpread}},
		{"three changes is fine", nil, 3, nil},
		{"rapid switching", nil, 4, []model.ConflictKind{model.ConflictRapidSwitching}},
		{
			"everything",
			[]model.UnitState{unit("a", model.ModeHeat, 58), unit("b", model.ModeCool, 75)},
			5,
			[]model.ConflictKind{model.ConflictModeMismatch, model.ConflictTemperatureSpread, model.ConflictRapidSwitching},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []model.ConflictKind
			for _, f := range detectConflicts(tt.online, tt.changes) {
				kinds = append(kinds, f.kind)
				assert.NotEmpty(t, f.description)
			}
			assert.Equal(t, tt.wantKinds, kinds)
		})
	}
}

func TestModeMismatchListsInvolvedUnits(t *testing.T) {
	findings := detectConflicts([]model.UnitState{
		{ID: "b", Mode: model.ModeCool, IsOnline: true},
		{ID: "a", Mode: model.ModeHeat, IsOnline: true},
		{ID: "c", Mode: model.ModeOff, IsOnline: true},
	}, 0)
	require.Len(t, findings, 1)
	assert.Equal(t, []string{"a", "b"}, findings[0].unitIDs)
	assert.Equal(t, "online units disagree on mode: heat (a); cool (b)", findings[0].description)
}

func TestGenerateActionsDeadband(t *testing.T) {
	tests := []struct {
		target float64
		want   bool
	}{
		{68, false},
		{68.5, false},
		{68.9, false},
		{67.1, false},
		{69, true},
		{67, true},
		{75, true},
	}

	for _, tt := range tests {
		online := []model.UnitState{{ID: "u", Mode: model.ModeHeat, TargetTemperature: tt.target}}
		actions := generateActions(online, actionPlan{targetMode: model.ModeHeat, modes: true, temperatures: true, globalMin: 68, globalMax: 72})
		if tt.want {
			require.Len(t, actions, 1, "target %.1f", tt.target)
			assert.Equal(t, ActionSetTemperature, actions[0].Kind)
			assert.Equal(t, 68.0, actions[0].Temperature)
		} else {
			assert.Empty(t, actions, "target %.1f", tt.target)
		}
	}
}

func TestGenerateActionsOrdering(t *testing.T) {
	online := []model.UnitState{
		{ID: "b", Mode: model.ModeOff, TargetTemperature: 70, Priority: 1},
		{ID: "a", Mode: model.ModeOff, TargetTemperature: 70, Priority: 1},
		{ID: "z", Mode: model.ModeOff, TargetTemperature: 70, Priority: 5},
	}
	actions := generateActions(online, actionPlan{targetMode: model.ModeCool, modes: true, temperatures: true, globalMin: 68, globalMax: 72})

	var got []string
	for _, a := range actions {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{
		"z: mode cool", "z: setpoint 72.0°F",
		"a: mode cool", "a: setpoint 72.0°F",
		"b: mode cool", "b: setpoint 72.0°F",
	}, got)
}

func TestGenerateActionsRespectsOverridesAndRooms(t *testing.T) {
	online := []model.UnitState{
		{ID: "bed", Room: "bedroom", Mode: model.ModeHeat, TargetTemperature: 70},
		{ID: "den", Room: "den", Mode: model.ModeHeat, TargetTemperature: 70},
		{ID: "kid", Room: "bedroom", Mode: model.ModeHeat, TargetTemperature: 65},
	}
	night := &model.Schedule{ID: "night", TargetMinTemp: 62, TargetMaxTemp: 66, ApplicableRooms: []string{"bedroom"}}
	respectKid := func(u model.UnitState, min, max float64) bool {
		return u.ID == "kid" && u.TargetTemperature >= min && u.TargetTemperature <= max
	}

	actions := generateActions(online, actionPlan{
		targetMode: model.ModeHeat, modes: true, temperatures: true,
		schedule: night, globalMin: 68, globalMax: 72, respect: respectKid,
	})

	require.Len(t, actions, 2)
	assert.Equal(t, Action{UnitID: "bed", Kind: ActionSetTemperature, Temperature: 62}, actions[0])
	assert.Equal(t, Action{UnitID: "den", Kind: ActionSetTemperature, Temperature: 68}, actions[1])
}

func TestGenerateActionsOffLeavesSetpoints(t *testing.T) {
	online := []model.UnitState{{ID: "u", Mode: model.ModeHeat, TargetTemperature: 60}}
	actions := generateActions(online, actionPlan{targetMode: model.ModeOff, modes: true, temperatures: true, globalMin: 68, globalMax: 72})
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSetMode, actions[0].Kind)
	assert.Equal(t, model.ModeOff, actions[0].Mode)
}
