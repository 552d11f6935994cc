//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoWrapperRecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	done := make(chan struct{})
	GoWrapper(func() {
		defer close(done)
		panic("boom")
	}, logger)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine did not run")
	}

	require.Eventually(t, func() bool {
		return len(hook.AllEntries()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, hook.LastEntry().Message, "boom")
}

func TestErrorGroupWrapper(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("returns first error", func(t *testing.T) {
		eg, _ := NewErrorGroupWithContext(context.Background(), logger)
		expected := errors.New("failed")
		eg.Go(func() error { return expected })
		eg.Go(func() error { return nil })
		assert.Equal(t, expected, eg.Wait())
	})

	t.Run("panic becomes error", func(t *testing.T) {
		eg, _ := NewErrorGroupWithContext(context.Background(), logger)
		eg.Go(func() error { panic("boom") })
		err := eg.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("cancels context on failure", func(t *testing.T) {
		eg, ctx := NewErrorGroupWithContext(context.Background(), logger)
		eg.Go(func() error { return errors.New("failed") })
		eg.Go(func() error {
			<-ctx.Done()
			return nil
		})
		assert.Error(t, eg.Wait())
	})
}
