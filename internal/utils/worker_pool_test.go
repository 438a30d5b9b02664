package utils_test

import (
	"assistant-backend/internal/utils"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunInpool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i
	}

	success, errors := 0, 0
	for result := range utils.RunInPool(worker, inputs, 5) {
		assert.Equal(t, inputs[result.Index], result.Input)
		if result.Error != nil {
			errors++
		} else {
			success++
		}
	}

	if success != 8 || errors != 2 {
		t.Fatal("invalid results")
	}
}

func TestRunAllPreservesOrder(t *testing.T) {
	worker := func(i int) (int, error) {
		time.Sleep(time.Duration(5-i) * time.Millisecond)
		return i * i, nil
	}

	results := utils.RunAll(worker, []int{0, 1, 2, 3, 4}, 3)

	for i, res := range results {
		assert.NoError(t, res.Error)
		assert.Equal(t, i*i, res.Result)
	}
}

func TestRunAllEmpty(t *testing.T) {
	results := utils.RunAll(func(i int) (int, error) { return i, nil }, nil, 4)
	assert.Empty(t, results)
}
