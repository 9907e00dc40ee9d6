package deps

import "tpbuild/internal/tpbuild"

func LLVMLibCxx() *tpbuild.Dependency {
	d := llvmProjectDependency("llvm1x_libcxx")
	d.AdditionalCMakeArgs = func(b *tpbuild.Builder) []string {
		return []string{
			"-DLIBCXX_USE_COMPILER_RT=ON",
			"-DLIBCXX_ENABLE_RTTI=ON",
			"-DLIBCXX_CXX_ABI=libcxxabi",
			"-DLIBCXXABI_USE_LLVM_UNWINDER=ON",
		}
	}
	d.Build = func(b *tpbuild.Builder) error {
		return buildLLVMProjectPart(b, d, "libcxx")
	}
	return d
}
