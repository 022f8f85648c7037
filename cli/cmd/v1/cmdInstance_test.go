package cmd

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceListJSON(t *testing.T) {
	fake := &fakeEC2{}
	fake.add("i-0bbbbbbbbbbbbbbbb", "web", "stopped", "", "t3.small")
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, out := newTestSystem(t, fake)

	c := &InstanceListCmd{}
	c.Output = "json"
	require.NoError(t, c.list(system))

	items := []map[string]map[string]interface{}{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "dev", items[0]["instance"]["Name"])
	assert.Equal(t, "web", items[1]["instance"]["Name"])
}

func TestInstanceListTable(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, out := newTestSystem(t, fake)

	c := &InstanceListCmd{Cost: true}
	c.Output = "table"
	c.TableTheme = "default"
	require.NoError(t, c.list(system))
	assert.Contains(t, out.String(), "dev.example.com")
	assert.Contains(t, out.String(), "Est. Cost")
}

func TestInstanceStop(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, _ := newTestSystem(t, fake)

	c := &InstanceStopCmd{}
	c.Name = "dev"
	require.ErrorIs(t, c.stop(system), errNeedsYes)
	assert.Empty(t, fake.stopped)

	c.Yes = true
	require.NoError(t, c.stop(system))
	assert.Equal(t, []string{devID}, fake.stopped)

	// already stopping is a no-op
	require.NoError(t, c.stop(system))
	assert.Len(t, fake.stopped, 1)
}

func TestInstanceStopFlags(t *testing.T) {
	system, _ := newTestSystem(t, &fakeEC2{})

	c := &InstanceStopCmd{Cancel: true, StopIn: "1h"}
	require.Error(t, c.stop(system))

	c = &InstanceStopCmd{StopIn: "soon"}
	c.Name = "dev"
	require.Error(t, c.stop(system))
}

func TestInstanceStopIn(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, _ := newTestSystem(t, fake)

	var shell string
	orig := remoteRun
	t.Cleanup(func() { remoteRun = orig })
	remoteRun = func(_ *System, _ *remote, s string, _ time.Duration, _ io.Writer, _ io.Writer) (int, error) {
		shell = s
		return 0, nil
	}

	c := &InstanceStopCmd{StopIn: "1h30m"}
	c.Name = "dev"
	require.NoError(t, c.stop(system))
	assert.Contains(t, shell, "+90")
	assert.Empty(t, fake.stopped)
}

func TestInstanceStartAlreadyRunning(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, _ := newTestSystem(t, fake)

	c := &InstanceStartCmd{}
	c.Name = "dev"
	require.NoError(t, c.start(system))
	assert.Empty(t, fake.started)
}

func TestInstanceStart(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "stopped", "", "t3.micro")
	system, _ := newTestSystem(t, fake)
	system.Opts.Config.Profile.InstanceName = "dev"

	c := &InstanceStartCmd{}
	require.NoError(t, c.start(system))
	assert.Equal(t, []string{devID}, fake.started)

	ids, err := system.Tracking.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{devID}, ids)
}

func TestInstanceStartStopInAfterSlowStart(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "stopped", "", "t3.micro")
	fake.onStart = func(inst *types.Instance) {
		inst.State = &types.InstanceState{Name: types.InstanceStateNamePending}
		inst.PublicDnsName = aws.String("")
		inst.PublicIpAddress = aws.String("203.0.113.9")
	}
	system, _ := newTestSystem(t, fake)

	var shell string
	orig := remoteRun
	t.Cleanup(func() { remoteRun = orig })
	remoteRun = func(_ *System, _ *remote, s string, _ time.Duration, _ io.Writer, _ io.Writer) (int, error) {
		shell = s
		return 0, nil
	}

	c := &InstanceStartCmd{StopIn: "2h"}
	c.Name = "dev"
	require.NoError(t, c.start(system))
	assert.Equal(t, []string{devID}, fake.started)
	assert.Contains(t, shell, "+120")
}

func TestSplitExecArgs(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, _ := newTestSystem(t, fake)
	c := &InstanceExecCmd{}

	_, _, _, err := c.splitExecArgs(system, nil)
	require.Error(t, err)

	name, id, command, err := c.splitExecArgs(system, []string{"dev", "uptime"})
	require.NoError(t, err)
	assert.Equal(t, "dev", name)
	assert.Equal(t, devID, id)
	assert.Equal(t, []string{"uptime"}, command)

	// a single argument is always the command
	_, _, _, err = c.splitExecArgs(system, []string{"dev"})
	require.ErrorIs(t, err, errNoInstanceName)

	system.Opts.Config.Profile.InstanceName = "dev"
	name, _, command, err = c.splitExecArgs(system, []string{"ls", "-la"})
	require.NoError(t, err)
	assert.Equal(t, "dev", name)
	assert.Equal(t, []string{"ls", "-la"}, command)
}

func TestExecExitCode(t *testing.T) {
	fake := &fakeEC2{}
	fake.add(devID, "dev", "running", "dev.example.com", "t3.micro")
	system, out := newTestSystem(t, fake)

	orig := remoteRun
	t.Cleanup(func() { remoteRun = orig })
	remoteRun = func(_ *System, _ *remote, _ string, _ time.Duration, w io.Writer, _ io.Writer) (int, error) {
		io.WriteString(w, "boom\n")
		return 3, nil
	}

	c := &InstanceExecCmd{Quiet: true}
	err := c.exec(system, []string{"dev", "false"})
	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "boom\n", out.String())
}

func TestSuggestName(t *testing.T) {
	name := suggestName("web-template")
	assert.Regexp(t, regexp.MustCompile(`^web-template-[a-z0-9]{6}$`), name)
}

func TestInstanceTypeArguments(t *testing.T) {
	c := &InstanceTypeCmd{}
	c.Args.Type = "t3.large"
	c.Args.Name = "dev"
	newType, name := c.arguments()
	assert.Equal(t, "t3.large", newType)
	assert.Equal(t, "dev", name)

	c = &InstanceTypeCmd{Type: "m5.xlarge"}
	c.Args.Type = "dev"
	newType, name = c.arguments()
	assert.Equal(t, "m5.xlarge", newType)
	assert.Equal(t, "dev", name)

	c = &InstanceTypeCmd{}
	c.Args.Type = "dev"
	newType, name = c.arguments()
	assert.Empty(t, newType)
	assert.Equal(t, "dev", name)

	c = &InstanceTypeCmd{}
	c.Args.Type = "t3.nano"
	newType, name = c.arguments()
	assert.Equal(t, "t3.nano", newType)
	assert.Empty(t, name)
}

func TestParseForwards(t *testing.T) {
	fwd, err := parseForwards([]string{"8080", "9000:80"})
	require.NoError(t, err)
	require.Len(t, fwd, 2)
	assert.Equal(t, 8080, fwd[0].Local)
	assert.Equal(t, 8080, fwd[0].Remote)
	assert.Equal(t, 9000, fwd[1].Local)
	assert.Equal(t, 80, fwd[1].Remote)

	_, err = parseForwards([]string{"70000"})
	require.Error(t, err)
}
