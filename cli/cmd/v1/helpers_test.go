package cmd

import (
	"errors"
	"testing"

	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/choice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInstanceName(t *testing.T) {
	system, _ := newTestSystem(t, &fakeEC2{})

	_, err := resolveInstanceName(system, "")
	require.ErrorIs(t, err, errNoInstanceName)

	system.Opts.Config.Profile.InstanceName = "dev box"
	name, err := resolveInstanceName(system, "")
	require.NoError(t, err)
	assert.Equal(t, "dev box", name)

	name, err = resolveInstanceName(system, "other")
	require.NoError(t, err)
	assert.Equal(t, "other", name)

	_, err = resolveInstanceName(system, "bad;name")
	require.Error(t, err)
}

func TestResolveInstance(t *testing.T) {
	fake := &fakeEC2{}
	fake.add("i-0aaaaaaaaaaaaaaaa", "dev", "running", "dev.example.com", "t3.micro")
	system, _ := newTestSystem(t, fake)

	name, id, err := resolveInstance(system, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", name)
	assert.Equal(t, "i-0aaaaaaaaaaaaaaaa", id)

	_, _, err = resolveInstance(system, "missing")
	require.Error(t, err)
	assert.True(t, isNotFound(err))
}

func TestConfirmAction(t *testing.T) {
	newTestSystem(t, &fakeEC2{})

	ok, err := confirmAction(true, "go?")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = confirmAction(false, "go?")
	require.ErrorIs(t, err, errNeedsYes)

	withAnswers(t, "maybe", "y")
	ok, err = confirmAction(false, "go?")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmDefault(t *testing.T) {
	newTestSystem(t, &fakeEC2{})
	withAnswers(t, "", "")

	ok, err := Confirm("start?", true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Confirm("delete?", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAskWithDefault(t *testing.T) {
	newTestSystem(t, &fakeEC2{})
	withAnswers(t, "", "custom")

	v, err := AskWithDefault("Name", "suggested")
	require.NoError(t, err)
	assert.Equal(t, "suggested", v)

	v, err = AskWithDefault("Name", "suggested")
	require.NoError(t, err)
	assert.Equal(t, "custom", v)
}

func TestSelectOne(t *testing.T) {
	newTestSystem(t, &fakeEC2{})

	_, err := selectOne("Select thing", nil)
	require.Error(t, err)

	_, err = selectOne("Select thing", [][]string{{"a"}})
	require.Error(t, err)

	origPick := pick
	t.Cleanup(func() { pick = origPick })
	interactive = func() bool { return true }

	var labels []string
	pick = func(title string, l []string) (int, error) {
		labels = l
		return 1, nil
	}
	idx, err := selectOne("Select thing", [][]string{{"a", "1"}, {"b", "2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Len(t, labels, 2)

	pick = func(string, []string) (int, error) {
		return -1, choice.ErrCancelled
	}
	_, err = selectOne("Select thing", [][]string{{"a"}})
	assert.True(t, errors.Is(err, errAborted))
}

func TestSSHUserAndKey(t *testing.T) {
	system, _ := newTestSystem(t, &fakeEC2{})

	user, err := sshUser(system, "")
	require.NoError(t, err)
	assert.Equal(t, "ubuntu", user)

	system.Opts.Config.Profile.SSHUser = "ec2-user"
	user, err = sshUser(system, "")
	require.NoError(t, err)
	assert.Equal(t, "ec2-user", user)

	user, err = sshUser(system, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", user)

	system.Opts.Config.Profile.SSHKeyPath = "/keys/dev.pem"
	assert.Equal(t, "/keys/dev.pem", sshKeyPath(system, ""))
	assert.Equal(t, "/keys/other.pem", sshKeyPath(system, "/keys/other.pem"))
}
