package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		topic    string
		expected Kind
		known    bool
	}{
		"cell motion with tns1 namespace": {
			topic:    "tns1:RuleEngine/CellMotionDetector/Motion",
			expected: Motion,
			known:    true,
		},
		"cell motion without namespace": {
			topic:    "RuleEngine/CellMotionDetector/Motion",
			expected: Motion,
			known:    true,
		},
		"cell motion with vendor namespace": {
			topic:    "tnsaxis:RuleEngine/CellMotionDetector/Motion",
			expected: Motion,
			known:    true,
		},
		"motion region": {
			topic:    "tns1:RuleEngine/MotionRegionDetector/Motion",
			expected: MotionRegion,
			known:    true,
		},
		"video source alarm": {
			topic:    "tns1:VideoSource/MotionAlarm",
			expected: MotionVideo,
			known:    true,
		},
		"people detect": {
			topic:    "tns1:RuleEngine/MyRuleDetector/PeopleDetect",
			expected: People,
			known:    true,
		},
		"dog cat detect": {
			topic:    "tns1:RuleEngine/MyRuleDetector/DogCatDetect",
			expected: Animal,
			known:    true,
		},
		"visitor": {
			topic:    "tns1:RuleEngine/MyRuleDetector/Visitor",
			expected: Visitor,
			known:    true,
		},
		"unknown rule": {
			topic: "tns1:RuleEngine/TamperDetector/Tamper",
			known: false,
		},
		"empty topic": {
			topic: "",
			known: false,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			kind, ok := Classify(tt.topic)
			assert.Equal(t, tt.known, ok)
			if tt.known {
				assert.Equal(t, tt.expected, kind)
			}
		})
	}
}

func TestClassifyNamespaceInsensitive(t *testing.T) {
	a, okA := Classify("tns1:VideoSource/MotionAlarm")
	b, okB := Classify("tnsvendor:VideoSource/MotionAlarm")
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}

func TestRawValues(t *testing.T) {
	raw := Raw{
		Topic: "tns1:RuleEngine/CellMotionDetector/Motion",
		Items: []SimpleItem{
			{Name: "VideoSourceConfigurationToken", Value: "vsconf"},
			{Name: "IsMotion", Value: "false"},
			{Name: "IsMotion", Value: "true"},
		},
	}
	values := raw.Values()
	assert.Len(t, values, 2)
	assert.Equal(t, "true", values["IsMotion"], "repeated names keep the last value")
	assert.Equal(t, "vsconf", values["VideoSourceConfigurationToken"])
}

func TestValuesState(t *testing.T) {
	tests := map[string]struct {
		values   Values
		expected bool
		wantErr  bool
	}{
		"is motion true": {
			values:   Values{"IsMotion": "true"},
			expected: true,
		},
		"is motion false": {
			values:   Values{"IsMotion": "false"},
			expected: false,
		},
		"state fallback": {
			values:   Values{"State": "true"},
			expected: true,
		},
		"is motion wins over state": {
			values:   Values{"State": "false", "IsMotion": "true"},
			expected: true,
		},
		"unparseable value": {
			values:  Values{"IsMotion": "active"},
			wantErr: true,
		},
		"no state item": {
			values:  Values{"Window": "0"},
			wantErr: true,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			state, err := tt.values.State()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
		})
	}
}

func TestValuesStateMissingIsErrNoState(t *testing.T) {
	_, err := Values{}.State()
	assert.ErrorIs(t, err, ErrNoState)
}
