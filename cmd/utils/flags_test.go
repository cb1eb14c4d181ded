package utils

import (
	"flag"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func contextWithFlags(t *testing.T, set func(*flag.FlagSet)) *cli.Context {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range SharedFlags {
		require.NoError(t, f.Apply(fs))
	}
	set(fs)
	return cli.NewContext(cli.NewApp(), fs, nil)
}

func TestSplitAndTrim(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, SplitAndTrim(" a, b ,c"))
	require.Nil(t, SplitAndTrim(""))
	require.Nil(t, SplitAndTrim(" , , "))
}

func TestParseEntryPointsRejectsEmpty(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {
		require.NoError(t, fs.Set(EntryPointsFlag.Name, ""))
	})
	_, err := ParseEntryPoints(ctx)
	require.Error(t, err)
}

func TestParseEntryPointsRejectsInvalidAddress(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {
		require.NoError(t, fs.Set(EntryPointsFlag.Name, "not-an-address"))
	})
	_, err := ParseEntryPoints(ctx)
	require.Error(t, err)
}

func TestParseEntryPointsParsesList(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {
		require.NoError(t, fs.Set(EntryPointsFlag.Name, "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789,0x0000000000000000000000000000000000000001"))
	})
	eps, err := ParseEntryPoints(ctx)
	require.NoError(t, err)
	require.Len(t, eps, 2)
}

func TestParseBigIntFlag(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {
		require.NoError(t, fs.Set(MinStakeFlag.Name, "12345"))
	})
	v, err := ParseBigIntFlag(ctx, MinStakeFlag)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(12345), v)
}

func TestParseBigIntFlagRejectsGarbage(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {
		require.NoError(t, fs.Set(MinStakeFlag.Name, "not-a-number"))
	})
	_, err := ParseBigIntFlag(ctx, MinStakeFlag)
	require.Error(t, err)
}

func TestSetupLoggingAcceptsFlagVerbosity(t *testing.T) {
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {})
	require.NoError(t, SetupLogging(ctx))
}

func TestSetupLoggingRejectsUnrecognizedEnv(t *testing.T) {
	t.Setenv("SILIUS_LOG", "not-a-level")
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {})
	require.Error(t, SetupLogging(ctx))
}

func TestSetupLoggingAcceptsNamedEnvLevel(t *testing.T) {
	t.Setenv("SILIUS_LOG", "debug")
	ctx := contextWithFlags(t, func(fs *flag.FlagSet) {})
	require.NoError(t, SetupLogging(ctx))
}
