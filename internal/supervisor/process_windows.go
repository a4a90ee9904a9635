//go:build windows

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

var (
	modntdll             = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = modntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = modntdll.NewProc("NtResumeProcess")
)

func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW,
	}
}

func suspendProcess(p *os.Process) error {
	return callProcessProc(procNtSuspendProcess, p)
}

func resumeProcess(p *os.Process) error {
	return callProcessProc(procNtResumeProcess, p)
}

// interruptProcess has no console-independent equivalent; the stdin quit
// request is the graceful path on Windows.
func interruptProcess(p *os.Process) error {
	return ErrUnsupportedOperation
}

func callProcessProc(proc *windows.LazyProc, p *os.Process) error {
	if err := proc.Find(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedOperation, err)
	}

	h, err := windows.OpenProcess(windows.PROCESS_SUSPEND_RESUME, false, uint32(p.Pid))
	if err != nil {
		return fmt.Errorf("OpenProcess: %w", err)
	}
	defer windows.CloseHandle(h)

	status, _, _ := proc.Call(uintptr(h))
	if status != 0 {
		return fmt.Errorf("%s: NTSTATUS 0x%08x", proc.Name, status)
	}
	return nil
}
