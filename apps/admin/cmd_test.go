package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/user"
	dummydb "github.com/alyxedu/alyx/storage/database/dummy"
	"github.com/alyxedu/alyx/testutil"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	// set up DB & repos
	usrRepo = dummydb.NewUserRepository(dummydb.Open())

	// start CLI
	return &commandLine{
		usrRepo: usrRepo,
		logger:  testutil.NewLogger(t),
	}
}

// mockPassword makes the password prompt return pwd.
func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", user.RoleStudent, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	existing := testutil.CreateUser(t, usrRepo, "Old Name", "jdoe", "jdoe@test.cd", "old", user.RoleNone, false)

	tests := []struct {
		cliTest
		pwd          string
		wantUname    string
		wantRole     user.Role
		wantSubjects []core.Subject
	}{
		{cliTest: cliTest{name: "no identity", args: []string{"adduser", "-name", "X"}, wantErr: errHelp}, pwd: "pwd"},
		{cliTest: cliTest{name: "unknown role", args: []string{"adduser", "-username", "x", "-role", "principal"}, wantErr: errHelp}, pwd: "pwd"},
		{cliTest: cliTest{name: "no password", args: []string{"adduser", "-username", "x"}, wantErr: errHelp}},
		{
			cliTest:   cliTest{name: "new admin", args: []string{"adduser", "-username", "Root", "-email", "root@test.cd", "-name", "Root", "-admin"}},
			pwd:       "s3cret",
			wantUname: "root",
			wantRole:  user.RoleAdmin,
		},
		{
			cliTest:      cliTest{name: "new teacher", args: []string{"adduser", "-email", "T@test.cd", "-role", "Teacher"}},
			pwd:          "s3cret",
			wantRole:     user.RoleTeacher,
			wantSubjects: core.AllSubjects,
		},
		{
			cliTest:   cliTest{name: "existing user updated", args: []string{"adduser", "-username", "jdoe", "-role", "student"}},
			pwd:       "n3w",
			wantUname: "jdoe",
			wantRole:  user.RoleStudent,
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		mockPassword(tt.pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}

			ident := tt.wantUname
			if ident == "" {
				ident = "t@test.cd"
			}
			usr, err := usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{ident}})
			if err != nil {
				t.Fatalf("GetUser() failed: %v", err)
			}
			if usr.Role != tt.wantRole || !usr.IsActive {
				t.Errorf("failed! role = %q, active = %v", usr.Role, usr.IsActive)
			}
			if len(usr.Subjects) != len(tt.wantSubjects) {
				t.Errorf("failed! subjects = %v, want %v", usr.Subjects, tt.wantSubjects)
			}
			if err = usr.CheckPassword(tt.pwd); err != nil {
				t.Errorf("failed! password not set: %v", err)
			}
		})
	}

	updated, err := usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if updated.Name != "Old Name" || updated.Email != "jdoe@test.cd" {
		t.Errorf("failed! existing user = %+v", updated)
	}
}

func Test_commandLine_seed(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	mockPassword("")
	if err := cli.run([]string{"admin", "seed"}); !errors.Is(err, errHelp) {
		t.Fatalf("cli.run() error = %v, wantErr %v", err, errHelp)
	}

	mockPassword("demo")
	if err := cli.run([]string{"admin", "seed"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	teacher, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "teacher@example.com"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if teacher.Role != user.RoleTeacher || teacher.Name != "Ms. Johnson" {
		t.Errorf("failed! teacher = %+v", teacher)
	}
	student, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "student@example.com"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if student.Role != user.RoleStudent || student.Name != "Alex Smith" {
		t.Errorf("failed! student = %+v", student)
	}

	// seeding again leaves existing accounts untouched
	mockPassword("other")
	if err = cli.run([]string{"admin", "seed"}); err != nil {
		t.Fatalf("cli.run() unexpected error = %v", err)
	}
	again, _ := usrRepo.GetUser(ctx, user.GetFilter{ID: teacher.ID})
	if !bytes.Equal(again.PasswordHash, teacher.PasswordHash) {
		t.Error("failed! seed must not reset existing passwords")
	}
}
