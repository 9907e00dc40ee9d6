package deps

import (
	"path/filepath"

	"tpbuild/internal/tpbuild"
)

const llvmProjectVersion = "17.0.6"

// llvmProjectDependency is the shared shape of the libc++abi and libc++
// builds, both compiled out of the monolithic llvm-project source archive.
func llvmProjectDependency(name string) *tpbuild.Dependency {
	return &tpbuild.Dependency{
		Name:            name,
		Version:         llvmProjectVersion,
		URLPattern:      "https://github.com/llvm/llvm-project/releases/download/llvmorg-{0}/llvm-project-{0}.src.tar.xz",
		Group:           tpbuild.BuildGroupInstrumented,
		DirNameOverride: "llvm-project-" + llvmProjectVersion + ".src",
		ShouldBuild: func(b *tpbuild.Builder) bool {
			return isLinuxClang(b)
		},
		// The libc++ CMake configuration needs these to find C standard
		// library functions in sanitized builds; -lstdc++ is stripped from
		// the final link by the compiler wrapper.
		AdditionalLDFlags: func(b *tpbuild.Builder) []string {
			if isLinuxClang(b) && b.BuildType().IsSanitizer() {
				return []string{"-ldl", "-lpthread", "-lm", "-lstdc++"}
			}
			return nil
		},
	}
}

// libcxxInstallPrefix keeps libc++ separate from the main install tree; the
// sanitized passes point -stdlib flags at it.
func libcxxInstallPrefix(b *tpbuild.Builder) string {
	return filepath.Join(b.Prefix(), "libcxx")
}

func LLVMLibCxxAbi() *tpbuild.Dependency {
	d := llvmProjectDependency("llvm1x_libcxxabi")
	d.AdditionalCMakeArgs = func(b *tpbuild.Builder) []string {
		llvmSrc := b.SourceDir(d)
		return []string{
			"-DLIBCXXABI_LIBCXX_PATH=" + filepath.Join(llvmSrc, "libcxx"),
			"-DLIBCXXABI_USE_COMPILER_RT=ON",
			"-DLIBCXXABI_USE_LLVM_UNWINDER=ON",
		}
	}
	d.Build = func(b *tpbuild.Builder) error {
		if err := buildLLVMProjectPart(b, d, "libcxxabi"); err != nil {
			return err
		}
		// The C++ ABI headers live with the libc++ headers.
		srcInclude := filepath.Join(b.SourceDir(d), "libcxxabi", "include")
		destInclude := filepath.Join(libcxxInstallPrefix(b), "include", "c++", "v1")
		if err := b.Exec.RunInDir("", nil, "mkdir", "-p", destInclude); err != nil {
			return err
		}
		for _, header := range []string{"cxxabi.h", "__cxxabi_config.h"} {
			if err := b.Exec.RunInDir("", nil, "cp",
				filepath.Join(srcInclude, header), destInclude); err != nil {
				return err
			}
		}
		return nil
	}
	return d
}

func buildLLVMProjectPart(b *tpbuild.Builder, d *tpbuild.Dependency, subdir string) error {
	llvmSrc := b.SourceDir(d)
	return b.BuildWithCMake(d, tpbuild.CMakeOptions{
		SrcSubdir: subdir,
		ExtraArgs: []string{
			"-DCMAKE_BUILD_TYPE=Release",
			"-DBUILD_SHARED_LIBS=ON",
			"-DLLVM_PATH=" + filepath.Join(llvmSrc, "llvm"),
			// Overrides the default prefix from the common CMake args.
			"-DCMAKE_INSTALL_PREFIX=" + libcxxInstallPrefix(b),
		},
	})
}
