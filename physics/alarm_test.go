package physics

import (
	"errors"
	"strings"
	"testing"
)

func TestAlarmDisarmedByDefault(t *testing.T) {
	a := NewPenetrationAlarm()
	if err := a.Check(1e9); err != nil {
		t.Errorf("disarmed alarm fired: %v", err)
	}
	if a.State().Armed {
		t.Error("new alarm should be disarmed")
	}
}

func TestAlarmConsecutiveRun(t *testing.T) {
	a := NewPenetrationAlarm()
	a.Configure(1, 3)
	for i := 0; i < 2; i++ {
		if err := a.Check(2); err != nil {
			t.Fatalf("fired early on sample %d: %v", i, err)
		}
	}
	if err := a.Check(0.5); err != nil {
		t.Fatalf("value under threshold fired: %v", err)
	}
	if got := a.State().CurrentRun; got != 0 {
		t.Errorf("run should reset, got %d", got)
	}
	a.Check(2)
	a.Check(2)
	err := a.Check(2)
	if !errors.Is(err, ErrPenetrationAlarm) {
		t.Fatalf("expected alarm error, got %v", err)
	}
	want := "[PenetrationAlarm] preMaxPenetration 2.000 > threshold 1.000 (consec=3/3)"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestAlarmThresholdIsExclusive(t *testing.T) {
	a := NewPenetrationAlarm()
	a.Set(1)
	if err := a.Check(1); err != nil {
		t.Errorf("value equal to threshold fired: %v", err)
	}
	if err := a.Check(1.01); err == nil {
		t.Error("expected alarm above threshold")
	}
}

func TestAlarmDisable(t *testing.T) {
	a := NewPenetrationAlarm()
	a.Configure(1, 0)
	if got := a.State().ConsecutiveRequired; got != 1 {
		t.Errorf("consecutive floor = %d, want 1", got)
	}
	a.Disable()
	if err := a.Check(10); err != nil {
		t.Errorf("disabled alarm fired: %v", err)
	}
}

func TestDefaultAlarmFunctions(t *testing.T) {
	defer DisablePenetrationAlarm()
	ConfigurePenetrationAlarm(5, 2)
	st := GetPenetrationAlarmState()
	if !st.Armed || st.Threshold != 5 || st.ConsecutiveRequired != 2 {
		t.Errorf("unexpected state %+v", st)
	}
	SetPenetrationAlarm(7)
	if st := GetPenetrationAlarmState(); st.Threshold != 7 || st.ConsecutiveRequired != 2 {
		t.Errorf("set should keep consecutive, got %+v", st)
	}
	DisablePenetrationAlarm()
	if GetPenetrationAlarmState().Armed {
		t.Error("expected disarmed")
	}
	if !strings.HasPrefix(ErrPenetrationAlarm.Error(), "[PenetrationAlarm]") {
		t.Error("sentinel should carry the alarm tag")
	}
}
